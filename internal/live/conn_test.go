package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/matheus3301/pchat/internal/bus"
)

// pipeTransport is an in-memory Transport: the test pushes inbound frames
// on in and reads what the Conn wrote from out.
type pipeTransport struct {
	in     chan Envelope
	out    chan Envelope
	closed chan struct{}
}

func newPipe() *pipeTransport {
	return &pipeTransport{
		in:     make(chan Envelope, 16),
		out:    make(chan Envelope, 16),
		closed: make(chan struct{}),
	}
}

func (p *pipeTransport) Read(ctx context.Context) (Envelope, error) {
	select {
	case env := <-p.in:
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-p.closed:
		return Envelope{}, errors.New("closed")
	}
}

func (p *pipeTransport) Write(_ context.Context, env Envelope) error {
	p.out <- env
	return nil
}

func (p *pipeTransport) Close() error {
	close(p.closed)
	return nil
}

func connectPipe(t *testing.T) (*Conn, *pipeTransport) {
	t.Helper()
	p := newPipe()
	c := NewConn(func(context.Context) (Transport, error) { return p, nil }, bus.New(), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, p
}

func mustFrame(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("expected a frame")
		return Envelope{}
	}
}

func noFrame(t *testing.T, ch <-chan Envelope) {
	t.Helper()
	select {
	case env := <-ch:
		t.Fatalf("unexpected frame %s", env.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func inbound(t *testing.T, event string, payload any) Envelope {
	t.Helper()
	env, err := NewEnvelope(event, payload)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestJoinIsIdempotent(t *testing.T) {
	c, p := connectPipe(t)
	ctx := context.Background()

	if err := c.Join(ctx, "r-1"); err != nil {
		t.Fatal(err)
	}
	env := mustFrame(t, p.out)
	if env.Event != EventJoinRoom || string(env.Data) != `"r-1"` {
		t.Errorf("frame = %s %s, want joinRoom \"r-1\"", env.Event, env.Data)
	}

	if err := c.Join(ctx, "r-1"); err != nil {
		t.Fatal(err)
	}
	noFrame(t, p.out)

	if got := c.Joined(); len(got) != 1 || got[0] != "r-1" {
		t.Errorf("Joined() = %v, want [r-1]", got)
	}
}

// answeringTransport delivers a message for the joined room from inside the
// joinRoom write, before Join has returned.
type answeringTransport struct {
	*pipeTransport
	delivered chan struct{}
}

func (a *answeringTransport) Write(ctx context.Context, env Envelope) error {
	if env.Event != EventJoinRoom {
		return a.pipeTransport.Write(ctx, env)
	}
	var room string
	if err := json.Unmarshal(env.Data, &room); err != nil {
		return err
	}
	frame, err := NewEnvelope(EventMessage, MessagePayload{Room: room, User: 42, Message: "early"})
	if err != nil {
		return err
	}
	a.in <- frame
	select {
	case <-a.delivered:
	case <-time.After(time.Second):
	}
	return nil
}

func TestDeliveryDuringJoinWriteReachesHandlers(t *testing.T) {
	tr := &answeringTransport{pipeTransport: newPipe(), delivered: make(chan struct{})}
	c := NewConn(func(context.Context) (Transport, error) { return tr, nil }, bus.New(), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	got := make(chan Delivery, 1)
	c.On("r-1", EventMessage, func(d Delivery) {
		got <- d
		close(tr.delivered)
	})
	if err := c.Join(context.Background(), "r-1"); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-got:
		if d.Message == nil || d.Message.Message != "early" {
			t.Errorf("delivery = %+v, want the early message", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message received while joining was dropped")
	}
}

type failingTransport struct{ *pipeTransport }

func (failingTransport) Write(context.Context, Envelope) error {
	return errors.New("broken pipe")
}

func TestFailedJoinIsNotRecorded(t *testing.T) {
	tr := failingTransport{newPipe()}
	c := NewConn(func(context.Context) (Transport, error) { return tr, nil }, bus.New(), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Join(context.Background(), "r-1"); err == nil {
		t.Fatal("expected join error")
	}
	if got := c.Joined(); len(got) != 0 {
		t.Errorf("Joined() = %v, want none after failed join", got)
	}
}

func TestMessageWithoutTimestampGetsArrivalTime(t *testing.T) {
	c, p := connectPipe(t)
	arrival := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return arrival }

	got := make(chan Delivery, 1)
	c.On("r-1", EventMessage, func(d Delivery) { got <- d })
	if err := c.Join(context.Background(), "r-1"); err != nil {
		t.Fatal(err)
	}
	mustFrame(t, p.out)

	p.in <- inbound(t, EventMessage, map[string]any{"user": 42, "message": "hi"})

	select {
	case d := <-got:
		if d.Message == nil || d.Message.User != 42 || d.Message.Message != "hi" {
			t.Fatalf("delivery = %+v", d)
		}
		if d.Message.Timestamp == nil || !d.Message.Timestamp.Equal(arrival) {
			t.Errorf("timestamp = %v, want arrival %v", d.Message.Timestamp, arrival)
		}
		if d.Message.IsRead != nil {
			t.Errorf("IsRead = %v, want absent", *d.Message.IsRead)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestLeaveRemovesHandlers(t *testing.T) {
	c, p := connectPipe(t)
	ctx := context.Background()

	calls := make(chan Delivery, 4)
	c.On("r-1", EventMessage, func(d Delivery) { calls <- d })
	if err := c.Join(ctx, "r-1"); err != nil {
		t.Fatal(err)
	}
	mustFrame(t, p.out)

	if err := c.Leave(ctx, "r-1"); err != nil {
		t.Fatal(err)
	}
	env := mustFrame(t, p.out)
	if env.Event != EventLeaveRoom {
		t.Errorf("frame = %s, want leaveRoom", env.Event)
	}

	// Rejoin without handlers: the old handler must stay silent.
	if err := c.Join(ctx, "r-1"); err != nil {
		t.Fatal(err)
	}
	mustFrame(t, p.out)
	p.in <- inbound(t, EventMessage, map[string]any{"user": 42, "message": "late"})

	select {
	case d := <-calls:
		t.Fatalf("stale handler received %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRoomScopedDispatch(t *testing.T) {
	c, p := connectPipe(t)
	ctx := context.Background()

	got := make(chan string, 4)
	c.On("r-1", EventMarkRead, func(d Delivery) { got <- "r-1" })
	c.On("r-2", EventMarkRead, func(d Delivery) { got <- "r-2" })
	for _, r := range []string{"r-1", "r-2"} {
		if err := c.Join(ctx, r); err != nil {
			t.Fatal(err)
		}
		mustFrame(t, p.out)
	}

	p.in <- inbound(t, EventMarkRead, ReadReceipt{User: 42, Room: "r-2"})

	select {
	case r := <-got:
		if r != "r-2" {
			t.Errorf("receipt delivered to %s, want r-2", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receipt not delivered")
	}
	select {
	case r := <-got:
		t.Errorf("receipt also delivered to %s", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendBeforeConnect(t *testing.T) {
	c := NewConn(nil, nil, nil)
	if err := c.SendReadReceipt(context.Background(), ReadReceipt{User: 7, Room: "r"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
}

func TestReadFailurePublishesDisconnect(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("live.", 1)
	defer unsub()

	p := newPipe()
	c := NewConn(func(context.Context) (Transport, error) { return p, nil }, b, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = p.Close()

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindLiveDown {
			t.Errorf("kind = %s, want %s", evt.Kind, bus.KindLiveDown)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
}

// TestWebSocketRoundTrip runs the Conn against a real WebSocket endpoint that
// answers a joinRoom with a message for that room.
func TestWebSocketRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		var room string
		_ = json.Unmarshal(env.Data, &room)
		ts := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
		reply, _ := NewEnvelope(EventMessage, MessagePayload{Room: room, User: 42, Message: "welcome", Timestamp: &ts})
		_ = wsjson.Write(ctx, conn, reply)
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewConn(WebSocketDialer(url, "secret"), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	got := make(chan Delivery, 1)
	c.On("r-1", EventMessage, func(d Delivery) { got <- d })
	if err := c.Join(ctx, "r-1"); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-got:
		if d.Room != "r-1" || d.Message.Message != "welcome" {
			t.Errorf("delivery = %+v", d)
		}
		if d.Message.Timestamp.Hour() != 9 {
			t.Errorf("server timestamp should be kept, got %v", d.Message.Timestamp)
		}
	case <-ctx.Done():
		t.Fatal("no delivery over websocket")
	}
}
