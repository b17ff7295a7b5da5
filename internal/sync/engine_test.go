package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/live"
	"github.com/matheus3301/pchat/internal/outbox"
	"github.com/matheus3301/pchat/internal/status"
)

const viewer = 7

// journal records calls across fakes so tests can assert their order.
type journal struct {
	mu      gosync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

func (j *journal) count(entry string) int {
	n := 0
	for _, e := range j.list() {
		if e == entry {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	rooms map[int64]string
}

func (f *fakeResolver) Resolve(_ context.Context, _, peerID int64) (string, error) {
	id, ok := f.rooms[peerID]
	if !ok {
		return "", errors.New("no such user")
	}
	return id, nil
}

type fakeHistory struct {
	j     *journal
	msgs  map[string][]chat.Message
	err   error
	gates map[string]chan struct{}
}

func (f *fakeHistory) Load(ctx context.Context, roomID string) ([]chat.Message, error) {
	f.j.add("load %s", roomID)
	if gate, ok := f.gates[roomID]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.msgs[roomID]), nil
}

type fakeChannel struct {
	j        *journal
	mu       gosync.Mutex
	handlers map[string]map[string][]live.Handler
	messages []live.MessagePayload
	// onJoin runs inside Join, before it returns.
	onJoin func(room string)
}

func (f *fakeChannel) On(room, event string, h live.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[room] == nil {
		f.handlers[room] = make(map[string][]live.Handler)
	}
	f.handlers[room][event] = append(f.handlers[room][event], h)
}

func (f *fakeChannel) Join(_ context.Context, room string) error {
	f.j.add("join %s", room)
	if f.onJoin != nil {
		f.onJoin(room)
	}
	return nil
}

func (f *fakeChannel) Leave(_ context.Context, room string) error {
	f.mu.Lock()
	delete(f.handlers, room)
	f.mu.Unlock()
	f.j.add("leave %s", room)
	return nil
}

func (f *fakeChannel) SendMessage(_ context.Context, m live.MessagePayload) error {
	f.mu.Lock()
	f.messages = append(f.messages, m)
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) SendReadReceipt(_ context.Context, r live.ReadReceipt) error {
	f.j.add("receipt %s %d", r.Room, r.User)
	return nil
}

func (f *fakeChannel) sent() []live.MessagePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.messages)
}

// emit delivers an inbound event the way live.Conn does.
func (f *fakeChannel) emit(room string, d live.Delivery) int {
	f.mu.Lock()
	hs := slices.Clone(f.handlers[room][d.Event])
	f.mu.Unlock()
	for _, h := range hs {
		h(d)
	}
	return len(hs)
}

type fakeMarker struct {
	j   *journal
	err error
}

func (f *fakeMarker) MarkMessagesAsRead(_ context.Context, roomID string, userID int64) error {
	f.j.add("mark %s %d", roomID, userID)
	return f.err
}

type fakeOutbox struct {
	mu      gosync.Mutex
	entries []outbox.Entry
}

func (f *fakeOutbox) Enqueue(e outbox.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

type harness struct {
	engine  *Engine
	j       *journal
	history *fakeHistory
	channel *fakeChannel
	marker  *fakeMarker
	outbox  *fakeOutbox
	bus     *bus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	j := &journal{}
	h := &harness{
		j:       j,
		history: &fakeHistory{j: j, msgs: map[string][]chat.Message{}, gates: map[string]chan struct{}{}},
		channel: &fakeChannel{j: j, handlers: map[string]map[string][]live.Handler{}},
		marker:  &fakeMarker{j: j},
		outbox:  &fakeOutbox{},
		bus:     bus.New(),
	}
	h.engine = NewEngine(viewer, Deps{
		Resolver: &fakeResolver{rooms: map[int64]string{42: "r-42", 43: "r-43"}},
		History:  h.history,
		Channel:  h.channel,
		Marker:   h.marker,
		Outbox:   h.outbox,
		Bus:      h.bus,
	})
	h.engine.dispatch = func(f func()) { f() }
	ids := 0
	h.engine.newID = func() string {
		ids++
		return fmt.Sprintf("cid-%d", ids)
	}
	h.engine.Start(context.Background())
	t.Cleanup(h.engine.Stop)
	return h
}

func (h *harness) waitFor(t *testing.T, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := h.engine.Snapshot(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s; last snapshot %+v", what, s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitState(t *testing.T, room string, st status.State) Snapshot {
	t.Helper()
	return h.waitFor(t, fmt.Sprintf("%s %s", room, st), func(s Snapshot) bool {
		return s.RoomID == room && s.State == st
	})
}

var day = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

func msg(author int64, text string, at time.Time, read chat.ReadState) chat.Message {
	return chat.Message{AuthorID: author, Text: text, Timestamp: at, Read: read}
}

func liveMessage(room string, author int64, text string, at time.Time) live.Delivery {
	return live.Delivery{
		Event:      live.EventMessage,
		Room:       room,
		Message:    &live.MessagePayload{Room: room, User: author, Message: text, Timestamp: &at},
		ReceivedAt: at,
	}
}

func texts(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestOpenSeedsAndAcknowledges(t *testing.T) {
	h := newHarness(t)
	h.history.msgs["r-42"] = []chat.Message{
		msg(42, "hi", day, chat.ReadFalse),
		msg(viewer, "hello", day.Add(time.Minute), chat.ReadFalse),
		msg(42, "how are you", day.Add(2*time.Minute), chat.ReadUnknown),
	}

	h.engine.Open(42)
	s := h.waitState(t, "r-42", status.Active)

	if got := texts(s.Messages); !slices.Equal(got, []string{"hi", "hello", "how are you"}) {
		t.Errorf("messages = %v", got)
	}
	if s.Unread != 0 {
		t.Errorf("Unread = %d, want 0 after activation", s.Unread)
	}
	if s.Messages[1].Read != chat.ReadFalse {
		t.Errorf("viewer message read = %s, want unread until the peer acknowledges", s.Messages[1].Read)
	}

	want := []string{"join r-42", "load r-42", "mark r-42 7", "receipt r-42 7"}
	if got := h.j.list(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestEventsBeforeSeedAreReplayed(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.history.gates["r-42"] = gate
	h.history.msgs["r-42"] = []chat.Message{msg(42, "old", day, chat.ReadTrue)}

	h.engine.Open(42)
	h.waitState(t, "r-42", status.Loading)

	if n := h.channel.emit("r-42", liveMessage("r-42", 42, "early", day.Add(time.Hour))); n != 1 {
		t.Fatalf("delivered to %d handlers, want 1", n)
	}
	h.waitFor(t, "queued delivery", func(s Snapshot) bool { return s.Pending == 1 })

	close(gate)
	s := h.waitState(t, "r-42", status.Active)

	if got := texts(s.Messages); !slices.Equal(got, []string{"old", "early"}) {
		t.Errorf("messages = %v, want history then the early live message", got)
	}
	if s.Pending != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending)
	}
}

func TestLiveMessageKeepsArrivalOrder(t *testing.T) {
	h := newHarness(t)
	h.history.msgs["r-42"] = []chat.Message{msg(42, "noon", day.Add(2*time.Hour), chat.ReadTrue)}

	h.engine.Open(42)
	h.waitState(t, "r-42", status.Active)

	h.channel.emit("r-42", liveMessage("r-42", 42, "earlier", day))
	s := h.waitFor(t, "live append", func(s Snapshot) bool { return len(s.Messages) == 2 })

	if got := texts(s.Messages); !slices.Equal(got, []string{"noon", "earlier"}) {
		t.Errorf("messages = %v, want arrival order", got)
	}
	if s.Messages[1].Read != chat.ReadUnknown {
		t.Errorf("live message read = %s, want unknown", s.Messages[1].Read)
	}
}

func TestTailVisibilityAcknowledgesOncePerTransition(t *testing.T) {
	h := newHarness(t)
	h.engine.Open(42)
	h.waitState(t, "r-42", status.Active)

	h.channel.emit("r-42", liveMessage("r-42", 42, "new", day))
	s := h.waitFor(t, "live append", func(s Snapshot) bool { return len(s.Messages) == 1 })
	if s.Unread != 1 {
		t.Fatalf("Unread = %d, want 1", s.Unread)
	}
	tail := s.Messages[0].Seq

	h.engine.TailVisible(tail, true)
	h.engine.TailVisible(tail, true)
	h.engine.TailVisible(tail, true)
	s = h.waitFor(t, "acknowledgement", func(s Snapshot) bool { return s.Unread == 0 })

	// One ack from activation, one from the tail becoming visible.
	if n := h.j.count("mark r-42 7"); n != 2 {
		t.Errorf("mark calls = %d, want 2", n)
	}
	if n := h.j.count("receipt r-42 7"); n != 2 {
		t.Errorf("receipts = %d, want 2", n)
	}
}

func TestDeliveryDuringJoinIsReplayed(t *testing.T) {
	h := newHarness(t)
	h.history.msgs["r-42"] = []chat.Message{msg(42, "old", day, chat.ReadTrue)}
	h.channel.onJoin = func(room string) {
		h.channel.emit(room, liveMessage(room, 42, "during join", day.Add(time.Hour)))
	}

	h.engine.Open(42)
	s := h.waitFor(t, "replayed delivery", func(s Snapshot) bool {
		return s.State == status.Active && len(s.Messages) == 2
	})
	if got := texts(s.Messages); !slices.Equal(got, []string{"old", "during join"}) {
		t.Errorf("messages = %v, want history then the message received while joining", got)
	}
}

func TestStaleTailReportIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.history.msgs["r-42"] = []chat.Message{msg(42, "seen", day, chat.ReadTrue)}
	h.engine.Open(42)
	s := h.waitState(t, "r-42", status.Active)
	drawn := s.Messages[0].Seq

	h.channel.emit("r-42", liveMessage("r-42", 42, "unseen", day.Add(time.Minute)))
	s = h.waitFor(t, "live append", func(s Snapshot) bool { return len(s.Messages) == 2 })
	fresh := s.Messages[1].Seq

	// The UI still reports the tail it drew before the message arrived.
	h.engine.TailVisible(drawn, true)
	s = h.waitFor(t, "stale report handled", func(Snapshot) bool { return true })
	if s.Unread != 1 {
		t.Errorf("Unread = %d, want 1 until the new tail is drawn", s.Unread)
	}
	if n := h.j.count("mark r-42 7"); n != 1 {
		t.Errorf("mark calls = %d, want 1 (activation only)", n)
	}

	h.engine.TailVisible(fresh, true)
	h.engine.TailVisible(fresh, true)
	h.waitFor(t, "acknowledgement", func(s Snapshot) bool { return s.Unread == 0 })
	if n := h.j.count("mark r-42 7"); n != 2 {
		t.Errorf("mark calls = %d, want 2", n)
	}
	if n := h.j.count("receipt r-42 7"); n != 2 {
		t.Errorf("receipts = %d, want 2", n)
	}
}

func TestSwitchingRoomsDropsStaleResults(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.history.gates["r-42"] = gate
	h.history.msgs["r-42"] = []chat.Message{msg(42, "stale", day, chat.ReadFalse)}
	h.history.msgs["r-43"] = []chat.Message{msg(43, "fresh", day, chat.ReadFalse)}

	ch, unsub := h.bus.Subscribe(bus.KindViewStatus, 32)
	defer unsub()

	h.engine.Open(42)
	h.waitState(t, "r-42", status.Loading)
	h.engine.Open(43)
	h.waitState(t, "r-43", status.Active)

	close(gate)
	if n := h.channel.emit("r-42", liveMessage("r-42", 42, "ghost", day)); n != 0 {
		t.Errorf("old room still has %d handlers", n)
	}

	// Sync with the loop twice so the stale history result is processed.
	h.engine.Snapshot(context.Background())
	s, _ := h.engine.Snapshot(context.Background())
	if s.RoomID != "r-43" || s.State != status.Active {
		t.Fatalf("snapshot = %s %s", s.RoomID, s.State)
	}
	if got := texts(s.Messages); !slices.Equal(got, []string{"fresh"}) {
		t.Errorf("messages = %v", got)
	}

	calls := h.j.list()
	leave := slices.Index(calls, "leave r-42")
	join := slices.Index(calls, "join r-43")
	if leave < 0 || join < 0 || leave > join {
		t.Errorf("calls = %v, want leave r-42 before join r-43", calls)
	}
	if n := h.j.count("mark r-42 7"); n != 0 {
		t.Errorf("stale room acknowledged %d times", n)
	}

	closed := false
	for len(ch) > 0 {
		evt := <-ch
		if c := evt.Payload.(status.StatusChange); evt.Room == "r-42" && c.To == status.Closed {
			closed = true
		}
	}
	if !closed {
		t.Error("previous view never reported CLOSED")
	}
}

func TestSend(t *testing.T) {
	h := newHarness(t)
	sentAt := day.Add(5 * time.Minute)
	h.engine.now = func() time.Time { return sentAt }

	ctx := context.Background()
	if _, err := h.engine.Send(ctx, "early"); !errors.Is(err, ErrNoActiveRoom) {
		t.Errorf("send before open: %v, want ErrNoActiveRoom", err)
	}

	h.engine.Open(42)
	h.waitState(t, "r-42", status.Active)

	if _, err := h.engine.Send(ctx, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank send: %v, want ErrEmptyMessage", err)
	}

	m, err := h.engine.Send(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if m.AuthorID != viewer || m.ClientID != "cid-1" || !m.Timestamp.Equal(sentAt) {
		t.Errorf("message = %+v", m)
	}
	if m.Direction(viewer) != chat.Sent {
		t.Errorf("direction = %s", m.Direction(viewer))
	}

	bcast := h.channel.sent()
	if len(bcast) != 1 || bcast[0].Message != "hello" || bcast[0].Room != "r-42" || bcast[0].ClientID != "cid-1" {
		t.Errorf("broadcasts = %+v", bcast)
	}
	h.outbox.mu.Lock()
	entries := slices.Clone(h.outbox.entries)
	h.outbox.mu.Unlock()
	if len(entries) != 1 || entries[0].Content != "hello" || !entries[0].Timestamp.Equal(sentAt) {
		t.Errorf("outbox = %+v", entries)
	}

	// The server echoes our own message back; it must not be duplicated.
	echo := liveMessage("r-42", viewer, "hello", sentAt)
	echo.Message.ClientID = "cid-1"
	h.channel.emit("r-42", echo)
	h.channel.emit("r-42", liveMessage("r-42", 42, "reply", sentAt.Add(time.Second)))

	s := h.waitFor(t, "reply", func(s Snapshot) bool { return len(s.Messages) >= 2 })
	if got := texts(s.Messages); !slices.Equal(got, []string{"hello", "reply"}) {
		t.Errorf("messages = %v", got)
	}
}

func TestReceipts(t *testing.T) {
	h := newHarness(t)
	h.history.msgs["r-42"] = []chat.Message{
		msg(viewer, "mine", day, chat.ReadFalse),
		msg(42, "theirs", day, chat.ReadTrue),
	}
	h.engine.Open(42)
	h.waitState(t, "r-42", status.Active)

	receipt := func(from int64) live.Delivery {
		return live.Delivery{Event: live.EventMarkRead, Room: "r-42", Receipt: &live.ReadReceipt{User: from, Room: "r-42"}}
	}

	h.channel.emit("r-42", receipt(viewer))
	s, _ := h.engine.Snapshot(context.Background())
	if s.Messages[0].Read != chat.ReadFalse {
		t.Errorf("own receipt changed state to %s", s.Messages[0].Read)
	}

	h.channel.emit("r-42", receipt(42))
	h.waitFor(t, "receipt", func(s Snapshot) bool { return s.Messages[0].Read == chat.ReadTrue })
}

func TestResolutionFailure(t *testing.T) {
	h := newHarness(t)
	ch, unsub := h.bus.Subscribe(bus.KindViewFailed, 1)
	defer unsub()

	h.engine.Open(99)
	s := h.waitFor(t, "failure", func(s Snapshot) bool { return s.State == status.Failed })

	if s.RoomID != "" || s.Seeded {
		t.Errorf("snapshot = %+v", s)
	}
	for _, c := range h.j.list() {
		t.Errorf("unexpected call %q without a room", c)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Error("no view.failed event")
	}
}

func TestHistoryFailureLeavesUnseeded(t *testing.T) {
	h := newHarness(t)
	h.history.err = errors.New("502")

	h.engine.Open(42)
	s := h.waitState(t, "r-42", status.Failed)
	if s.Seeded {
		t.Error("timeline seeded after a failed load")
	}
	if h.j.count("leave r-42") != 1 {
		t.Errorf("calls = %v, want the room left", h.j.list())
	}
	if n := h.channel.emit("r-42", liveMessage("r-42", 42, "late", day)); n != 0 {
		t.Errorf("failed view still has %d handlers", n)
	}

	// Reopening re-runs the whole activation.
	h.history.err = nil
	h.engine.Open(42)
	h.waitState(t, "r-42", status.Active)
	if n := h.j.count("load r-42"); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestStopClosesView(t *testing.T) {
	h := newHarness(t)
	h.engine.Open(42)
	h.waitState(t, "r-42", status.Active)

	h.engine.Stop()
	if h.j.count("leave r-42") != 1 {
		t.Errorf("calls = %v, want the room left on stop", h.j.list())
	}
	if _, err := h.engine.Snapshot(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("snapshot after stop: %v, want ErrStopped", err)
	}
}
