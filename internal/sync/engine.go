// Package sync runs one conversation view at a time: it resolves the room,
// joins the live channel, seeds the timeline from history and keeps it
// current with live events and read acknowledgements.
package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/live"
	"github.com/matheus3301/pchat/internal/outbox"
	"github.com/matheus3301/pchat/internal/readtrack"
	"github.com/matheus3301/pchat/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrNoActiveRoom is returned by Send when no view is Active.
	ErrNoActiveRoom = errors.New("no active room")
	// ErrEmptyMessage is returned by Send for blank text.
	ErrEmptyMessage = errors.New("empty message")
	// ErrStopped is returned when the engine loop is not running.
	ErrStopped = errors.New("engine stopped")
)

// Resolver maps a viewer/peer pair to a room.
type Resolver interface {
	Resolve(ctx context.Context, viewerID, peerID int64) (string, error)
}

// History loads a room's persisted messages.
type History interface {
	Load(ctx context.Context, roomID string) ([]chat.Message, error)
}

// Channel is the part of the live connection a view uses.
type Channel interface {
	On(room, event string, h live.Handler)
	Join(ctx context.Context, room string) error
	Leave(ctx context.Context, room string) error
	SendMessage(ctx context.Context, m live.MessagePayload) error
	SendReadReceipt(ctx context.Context, r live.ReadReceipt) error
}

// Outbox accepts messages for durable persistence.
type Outbox interface {
	Enqueue(e outbox.Entry) error
}

// Deps groups the collaborators of an Engine.
type Deps struct {
	Resolver Resolver
	History  History
	Channel  Channel
	Marker   readtrack.Marker
	Outbox   Outbox
	Bus      *bus.Bus
	Logger   *zap.Logger
}

// Engine owns the current conversation view. Every mutation of view state
// happens on the loop goroutine; blocking calls run on helpers that post
// their results back tagged with the view generation.
type Engine struct {
	viewerID int64
	deps     Deps
	logger   *zap.Logger
	timeout  time.Duration

	now   func() time.Time
	newID func() string
	// dispatch runs outward read acknowledgements.
	dispatch func(func())

	ops     chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	// loop-owned
	gen  uint64
	view *roomView
}

// NewEngine creates an engine for viewerID. Call Start before use.
func NewEngine(viewerID int64, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		viewerID: viewerID,
		deps:     deps,
		logger:   logger,
		timeout:  10 * time.Second,
		now:      time.Now,
		newID:    uuid.NewString,
		dispatch: func(f func()) { go f() },
		ops:      make(chan func(), 64),
		stopped:  make(chan struct{}),
	}
}

// ViewerID returns the id of the local user.
func (e *Engine) ViewerID() int64 {
	return e.viewerID
}

// Start runs the event loop until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	go e.loop()
}

// Stop closes the current view and stops the loop.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.stopped
}

func (e *Engine) loop() {
	defer close(e.stopped)
	for {
		select {
		case op := <-e.ops:
			op()
		case <-e.ctx.Done():
			e.closeView()
			return
		}
	}
}

// post queues op on the loop. It reports false once the loop has exited.
func (e *Engine) post(op func()) bool {
	select {
	case e.ops <- op:
		return true
	case <-e.stopped:
		return false
	}
}

// call runs op on the loop and waits for it.
func (e *Engine) call(ctx context.Context, op func()) error {
	done := make(chan struct{})
	if !e.post(func() { op(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open switches to the conversation with peerID. The previous room is left
// first. Progress is reported through view.status_changed events.
func (e *Engine) Open(peerID int64) {
	e.post(func() { e.open(peerID) })
}

// Close leaves the current room, if any.
func (e *Engine) Close() {
	e.post(e.closeView)
}

// TailVisible reports whether the tail element seq is currently on screen.
func (e *Engine) TailVisible(seq uint64, visible bool) {
	e.post(func() {
		if v := e.view; v != nil && v.tracker != nil {
			v.tracker.ObserveTail(seq, visible)
		}
	})
}

// Send appends text to the active timeline, broadcasts it on the live
// channel and queues it for persistence.
func (e *Engine) Send(ctx context.Context, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	var (
		m   chat.Message
		err error
	)
	if callErr := e.call(ctx, func() { m, err = e.send(text) }); callErr != nil {
		return chat.Message{}, callErr
	}
	return m, err
}

// Snapshot is a read-only copy of the current view.
type Snapshot struct {
	Gen      uint64
	PeerID   int64
	RoomID   string
	State    status.State
	Seeded   bool
	Messages []chat.Message
	Unread   int
	Pending  int
}

// Snapshot copies the current view state. The zero State is Idle with no view.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.call(ctx, func() {
		s = Snapshot{Gen: e.gen, State: status.Idle}
		v := e.view
		if v == nil {
			return
		}
		s.PeerID = v.peerID
		s.RoomID = v.roomID
		s.State = v.machine.Current()
		s.Pending = len(v.pending)
		if v.timeline != nil && v.timeline.State() == chat.Seeded {
			s.Seeded = true
			s.Messages = v.timeline.Messages()
			s.Unread = v.timeline.Unread()
		}
	})
	return s, err
}

func (e *Engine) open(peerID int64) {
	e.closeView()

	e.gen++
	v := newRoomView(e.gen, peerID, status.NewMachine(e.deps.Bus))
	e.view = v
	e.transition(v, status.Resolving)
	e.logger.Info("opening conversation", zap.Int64("peer", peerID), zap.Uint64("gen", v.gen))

	gen := v.gen
	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
		defer cancel()
		roomID, err := e.deps.Resolver.Resolve(ctx, e.viewerID, peerID)
		e.post(func() { e.resolved(gen, roomID, err) })
	}()
}

// current returns the view if it still belongs to gen.
func (e *Engine) current(gen uint64) *roomView {
	if e.view == nil || e.view.gen != gen {
		return nil
	}
	return e.view
}

func (e *Engine) resolved(gen uint64, roomID string, err error) {
	v := e.current(gen)
	if v == nil {
		e.logger.Debug("dropping stale resolution", zap.Uint64("gen", gen))
		return
	}
	if err != nil {
		e.fail(v, err)
		return
	}

	v.bind(roomID, chat.NewTimeline(e.viewerID))
	v.tracker = readtrack.New(e.viewerID, roomID, v.timeline, e.deps.Marker, e.deps.Channel, e.deps.Bus, e.logger)
	v.tracker.Go = e.dispatch

	for _, event := range []string{live.EventMessage, live.EventMarkRead} {
		e.deps.Channel.On(roomID, event, func(d live.Delivery) {
			e.post(func() { e.deliver(gen, d) })
		})
	}
	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	err = e.deps.Channel.Join(ctx, roomID)
	cancel()
	if err != nil {
		// The view still works from history; live updates resume on the next open.
		e.logger.Warn("join room failed", zap.String("room", roomID), zap.Error(err))
	}

	e.transition(v, status.Loading)
	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
		defer cancel()
		history, err := e.deps.History.Load(ctx, roomID)
		e.post(func() { e.loaded(gen, history, err) })
	}()
}

func (e *Engine) loaded(gen uint64, history []chat.Message, err error) {
	v := e.current(gen)
	if v == nil {
		e.logger.Debug("dropping stale history", zap.Uint64("gen", gen))
		return
	}
	if err != nil {
		e.fail(v, err)
		return
	}
	if err := v.timeline.Seed(history); err != nil {
		e.logger.DPanic("seed timeline", zap.String("room", v.roomID), zap.Error(err))
		return
	}

	replayed := e.replay(v)
	e.transition(v, status.Active)
	e.logger.Info("conversation active",
		zap.String("room", v.roomID),
		zap.Int("history", len(history)),
		zap.Int("replayed", replayed),
	)
	e.changed(v)
	v.tracker.Activate()
	if tail, ok := v.timeline.Tail(); ok {
		v.tracker.TailChanged(tail.Seq)
	}
}

func (e *Engine) deliver(gen uint64, d live.Delivery) {
	v := e.current(gen)
	if v == nil {
		return
	}
	switch v.machine.Current() {
	case status.Failed, status.Closed:
		return
	}
	if v.timeline.State() != chat.Seeded {
		v.pending = append(v.pending, d)
		return
	}
	e.apply(v, d)
}

func (e *Engine) send(text string) (chat.Message, error) {
	v := e.view
	if v == nil || v.machine.Current() != status.Active {
		e.logger.DPanic("send without active room", zap.Error(ErrNoActiveRoom))
		return chat.Message{}, ErrNoActiveRoom
	}

	m, err := v.timeline.Append(chat.Message{
		Text:      text,
		Timestamp: e.now(),
		AuthorID:  e.viewerID,
		Read:      chat.ReadFalse,
		ClientID:  e.newID(),
	})
	if err != nil {
		e.logger.DPanic("append sent message", zap.Error(err))
		return chat.Message{}, err
	}
	v.tracker.TailChanged(m.Seq)
	e.changed(v)

	ts := m.Timestamp
	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	err = e.deps.Channel.SendMessage(ctx, live.MessagePayload{
		Room:      v.roomID,
		User:      e.viewerID,
		Message:   text,
		Timestamp: &ts,
		ClientID:  m.ClientID,
	})
	cancel()
	if err != nil {
		e.logger.Warn("broadcast message failed", zap.String("client_id", m.ClientID), zap.Error(err))
	}

	if err := e.deps.Outbox.Enqueue(outbox.Entry{
		ClientID:  m.ClientID,
		Room:      v.roomID,
		User:      e.viewerID,
		Content:   text,
		Timestamp: ts,
	}); err != nil {
		e.logger.Error("queue message for persistence", zap.String("client_id", m.ClientID), zap.Error(err))
		e.deps.Bus.Publish(bus.NewEvent(bus.KindSendFailed, v.roomID, outbox.Result{ClientID: m.ClientID, Err: err.Error()}))
	}
	return m, nil
}

func (e *Engine) fail(v *roomView, err error) {
	e.logger.Error("conversation failed", zap.Int64("peer", v.peerID), zap.String("room", v.roomID), zap.Error(err))
	v.pending = nil
	e.leave(v)
	e.transition(v, status.Failed)
	e.deps.Bus.Publish(bus.NewEvent(bus.KindViewFailed, v.roomID, err.Error()))
}

func (e *Engine) closeView() {
	v := e.view
	if v == nil {
		return
	}
	e.view = nil
	if v.tracker != nil {
		v.tracker.Deactivate()
	}
	e.leave(v)
	e.transition(v, status.Closed)
}

// leave unsubscribes the view's room. Handlers are gone once it returns.
func (e *Engine) leave(v *roomView) {
	if v.roomID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.deps.Channel.Leave(ctx, v.roomID); err != nil {
		e.logger.Warn("leave room failed", zap.String("room", v.roomID), zap.Error(err))
	}
}

func (e *Engine) transition(v *roomView, to status.State) {
	if err := v.machine.Transition(to); err != nil {
		e.logger.DPanic("view transition", zap.Uint64("gen", v.gen), zap.Error(err))
	}
}

func (e *Engine) changed(v *roomView) {
	e.deps.Bus.Publish(bus.NewEvent(bus.KindTimelineChanged, v.roomID, v.timeline.Len()))
}
