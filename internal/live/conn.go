// Package live is the shared duplex connection that carries room events.
// One Conn lives for the whole client session; conversation views only
// join, leave and scope handlers to their room.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by writes before Connect or after Close.
var ErrNotConnected = errors.New("live: not connected")

// Transport moves envelopes over an established connection.
type Transport interface {
	Read(ctx context.Context) (Envelope, error)
	Write(ctx context.Context, env Envelope) error
	Close() error
}

// Dialer opens a Transport.
type Dialer func(ctx context.Context) (Transport, error)

// Conn multiplexes room subscriptions over one Transport.
type Conn struct {
	dial   Dialer
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	tr       Transport
	joined   map[string]bool
	handlers map[string]map[string][]Handler
	cancel   context.CancelFunc
	done     chan struct{}

	writeMu sync.Mutex
}

// NewConn creates an unconnected Conn.
func NewConn(dial Dialer, b *bus.Bus, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		dial:     dial,
		bus:      b,
		logger:   logger,
		now:      time.Now,
		joined:   make(map[string]bool),
		handlers: make(map[string]map[string][]Handler),
	}
}

// Connect dials the transport and starts the read loop. ctx only bounds the dial.
func (c *Conn) Connect(ctx context.Context) error {
	tr, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("live dial: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.tr = tr
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.readLoop(loopCtx, tr)
	}()
	c.logger.Info("live channel connected")
	return nil
}

// Close stops the read loop and closes the transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	tr, cancel, done := c.tr, c.cancel, c.done
	c.tr = nil
	c.joined = make(map[string]bool)
	c.handlers = make(map[string]map[string][]Handler)
	c.mu.Unlock()

	if tr == nil {
		return nil
	}
	cancel()
	err := tr.Close()
	<-done
	return err
}

// On registers a handler for event deliveries scoped to room.
func (c *Conn) On(room, event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byEvent, ok := c.handlers[room]
	if !ok {
		byEvent = make(map[string][]Handler)
		c.handlers[room] = byEvent
	}
	byEvent[event] = append(byEvent[event], h)
}

// Join subscribes to room. Joining a room twice sends nothing the second time.
// The room counts as joined before the frame is written so that a delivery
// racing the write still reaches its handlers; a failed write undoes it.
func (c *Conn) Join(ctx context.Context, room string) error {
	c.mu.Lock()
	if c.joined[room] {
		c.mu.Unlock()
		return nil
	}
	c.joined[room] = true
	c.mu.Unlock()

	if err := c.Send(ctx, EventJoinRoom, room); err != nil {
		c.mu.Lock()
		delete(c.joined, room)
		c.mu.Unlock()
		return err
	}
	c.logger.Debug("joined room", zap.String("room", room))
	return nil
}

// Leave drops every handler registered for room and unsubscribes from it.
// Handlers are removed even when the leave frame cannot be written.
func (c *Conn) Leave(ctx context.Context, room string) error {
	c.mu.Lock()
	delete(c.handlers, room)
	wasJoined := c.joined[room]
	delete(c.joined, room)
	c.mu.Unlock()

	if !wasJoined {
		return nil
	}
	c.logger.Debug("left room", zap.String("room", room))
	return c.Send(ctx, EventLeaveRoom, room)
}

// Joined lists the rooms currently joined.
func (c *Conn) Joined() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.joined))
	for r := range c.joined {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// Send writes one event frame.
func (c *Conn) Send(ctx context.Context, event string, payload any) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := tr.Write(ctx, env); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// SendMessage broadcasts a chat message to its room.
func (c *Conn) SendMessage(ctx context.Context, m MessagePayload) error {
	return c.Send(ctx, EventMessage, m)
}

// SendReadReceipt tells the room that r.User has read it.
func (c *Conn) SendReadReceipt(ctx context.Context, r ReadReceipt) error {
	return c.Send(ctx, EventMarkRead, r)
}

func (c *Conn) readLoop(ctx context.Context, tr Transport) {
	for {
		env, err := tr.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("live channel read failed", zap.Error(err))
				c.bus.Publish(bus.NewEvent(bus.KindLiveDown, "", err.Error()))
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env Envelope) {
	d := Delivery{Event: env.Event, ReceivedAt: c.now()}
	switch env.Event {
	case EventMessage:
		var m MessagePayload
		if err := json.Unmarshal(env.Data, &m); err != nil {
			c.logger.Warn("bad message frame", zap.Error(err))
			return
		}
		if m.Timestamp == nil {
			arrived := d.ReceivedAt
			m.Timestamp = &arrived
		}
		d.Room = m.Room
		d.Message = &m
	case EventMarkRead:
		var r ReadReceipt
		if err := json.Unmarshal(env.Data, &r); err != nil {
			c.logger.Warn("bad markRead frame", zap.Error(err))
			return
		}
		d.Room = r.Room
		d.Receipt = &r
	default:
		c.logger.Debug("ignoring live event", zap.String("event", env.Event))
		return
	}

	for _, h := range c.handlersFor(d.Room, d.Event) {
		h(d)
	}
}

// handlersFor returns the handlers of joined rooms for event. A delivery
// naming a room only reaches that room.
func (c *Conn) handlersFor(room, event string) []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Handler
	for r, byEvent := range c.handlers {
		if !c.joined[r] {
			continue
		}
		if room != "" && r != room {
			continue
		}
		out = append(out, byEvent[event]...)
	}
	return out
}
