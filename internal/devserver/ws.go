package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/matheus3301/pchat/internal/live"
	"go.uber.org/zap"
)

// wsHandler upgrades connections and bridges them to the hub.
type wsHandler struct {
	hub    *Hub
	logger *zap.Logger
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Warn("ws accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	c := newClient(uuid.NewString())
	logger := h.logger.With(zap.String("client_id", c.id))
	h.hub.register(c)
	defer h.hub.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- h.readLoop(ctx, conn, c, logger) }()
	go func() { errCh <- h.writeLoop(ctx, conn, c) }()

	err = <-errCh
	cancel()

	status := websocket.CloseStatus(err)
	if err != nil && !errors.Is(err, context.Canceled) && status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		logger.Warn("ws connection closed with error", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closing")
}

func (h *wsHandler) readLoop(ctx context.Context, conn *websocket.Conn, c *client, logger *zap.Logger) error {
	for {
		var env live.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}

		switch env.Event {
		case live.EventJoinRoom, live.EventLeaveRoom:
			var room string
			if err := json.Unmarshal(env.Data, &room); err != nil || room == "" {
				logger.Debug("bad room frame", zap.String("event", env.Event))
				continue
			}
			if env.Event == live.EventJoinRoom {
				h.hub.join(c, room)
			} else {
				h.hub.leave(c, room)
			}
		case live.EventMessage:
			var m live.MessagePayload
			if err := json.Unmarshal(env.Data, &m); err != nil || m.Room == "" {
				logger.Debug("bad message frame", zap.Error(err))
				continue
			}
			h.hub.broadcast(m.Room, env)
		case live.EventMarkRead:
			var rr live.ReadReceipt
			if err := json.Unmarshal(env.Data, &rr); err != nil || rr.Room == "" {
				logger.Debug("bad markRead frame", zap.Error(err))
				continue
			}
			h.hub.broadcast(rr.Room, env)
		default:
			logger.Debug("ignoring event", zap.String("event", env.Event))
		}
	}
}

func (h *wsHandler) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) error {
	for {
		select {
		case env, ok := <-c.events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, env); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
