package live

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const readLimit = 1 << 20

type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an established WebSocket connection.
func NewWebSocketTransport(conn *websocket.Conn) Transport {
	conn.SetReadLimit(readLimit)
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) (Envelope, error) {
	var env Envelope
	err := wsjson.Read(ctx, t.conn, &env)
	return env, err
}

func (t *wsTransport) Write(ctx context.Context, env Envelope) error {
	return wsjson.Write(ctx, t.conn, env)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "bye")
}

// WebSocketDialer dials url, sending token as a bearer credential when set.
func WebSocketDialer(url, token string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
		if token != "" {
			opts.HTTPHeader.Set("Authorization", "Bearer "+token)
		}
		conn, _, err := websocket.Dial(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		return NewWebSocketTransport(conn), nil
	}
}
