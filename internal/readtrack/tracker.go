// Package readtrack decides when the viewer has seen the conversation and
// propagates read acknowledgements in both directions.
package readtrack

import (
	"context"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/live"
	"go.uber.org/zap"
)

// Reason names the trigger behind an acknowledgement.
type Reason string

const (
	ReasonActivated   Reason = "activated"
	ReasonTailVisible Reason = "tail_visible"
)

// Marker records reads in the durable store.
type Marker interface {
	MarkMessagesAsRead(ctx context.Context, roomID string, userID int64) error
}

// Broadcaster tells the counterpart, over the live channel, that the viewer read the room.
type Broadcaster interface {
	SendReadReceipt(ctx context.Context, r live.ReadReceipt) error
}

// Ack is the payload published on every acknowledgement.
type Ack struct {
	Reason  Reason
	Flipped int
}

// Tracker is bound to one room view. All methods must be called from the
// goroutine that owns the timeline.
type Tracker struct {
	viewerID int64
	roomID   string
	timeline *chat.Timeline
	marker   Marker
	bcast    Broadcaster
	bus      *bus.Bus
	logger   *zap.Logger
	timeout  time.Duration
	// Go runs the outward acknowledgement off the owning goroutine.
	Go func(func())

	active     bool
	tailSeq    uint64
	tailInView bool
	acks       int
}

// New creates an inactive tracker for one room.
func New(viewerID int64, roomID string, tl *chat.Timeline, marker Marker, bcast Broadcaster, b *bus.Bus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		viewerID: viewerID,
		roomID:   roomID,
		timeline: tl,
		marker:   marker,
		bcast:    bcast,
		bus:      b,
		logger:   logger.With(zap.String("room", roomID)),
		timeout:  10 * time.Second,
		Go:       func(f func()) { go f() },
	}
}

// Activate marks the room active and acknowledges everything already shown.
// Only the first call acknowledges.
func (t *Tracker) Activate() {
	if t.active {
		return
	}
	t.active = true
	t.acknowledge(ReasonActivated)
}

// Deactivate stops visibility triggers; the view is going away.
func (t *Tracker) Deactivate() {
	t.active = false
}

// Active reports whether triggers are armed.
func (t *Tracker) Active() bool {
	return t.active
}

// TailChanged re-arms the visibility trigger for a new tail element.
func (t *Tracker) TailChanged(seq uint64) {
	if seq != t.tailSeq {
		t.tailSeq = seq
		t.tailInView = false
	}
}

// ObserveTail feeds a visibility report for the tail element identified by seq.
// It acknowledges once per not-visible to visible transition of that element
// and reports whether it did. Reports about anything but the timeline's
// current tail are stale renders and are ignored.
func (t *Tracker) ObserveTail(seq uint64, visible bool) bool {
	if !t.active {
		return false
	}
	tail, ok := t.timeline.Tail()
	if !ok || tail.Seq != seq {
		t.logger.Debug("stale tail report", zap.Uint64("seq", seq), zap.Uint64("tail", tail.Seq))
		return false
	}
	t.TailChanged(tail.Seq)
	if !visible {
		t.tailInView = false
		return false
	}
	if t.tailInView {
		return false
	}
	t.tailInView = true
	t.acknowledge(ReasonTailVisible)
	return true
}

// ApplyReceipt handles a counterpart's markRead. Receipts from the viewer's
// own id are ignored. Returns how many of the viewer's messages flipped.
func (t *Tracker) ApplyReceipt(fromUserID int64) (int, error) {
	if fromUserID == t.viewerID {
		return 0, nil
	}
	n, err := t.timeline.MarkAuthoredByViewerAsRead()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.bus.Publish(bus.NewEvent(bus.KindReceiptApplied, t.roomID, n))
	}
	return n, nil
}

// Acks returns how many acknowledgements were emitted.
func (t *Tracker) Acks() int {
	return t.acks
}

func (t *Tracker) acknowledge(reason Reason) {
	flipped, err := t.timeline.MarkAuthoredByOthersAsRead()
	if err != nil {
		t.logger.DPanic("acknowledge on unseeded timeline", zap.Error(err))
		return
	}
	t.acks++
	t.bus.Publish(bus.NewEvent(bus.KindReadAcked, t.roomID, Ack{Reason: reason, Flipped: flipped}))

	roomID, viewerID := t.roomID, t.viewerID
	t.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		// Best effort both ways: nothing is retried or rolled back.
		if err := t.marker.MarkMessagesAsRead(ctx, roomID, viewerID); err != nil {
			t.logger.Warn("mark as read failed", zap.String("reason", string(reason)), zap.Error(err))
		}
		if err := t.bcast.SendReadReceipt(ctx, live.ReadReceipt{User: viewerID, Room: roomID}); err != nil {
			t.logger.Warn("read receipt broadcast failed", zap.String("reason", string(reason)), zap.Error(err))
		}
	})
	t.logger.Debug("read acknowledged", zap.String("reason", string(reason)), zap.Int("flipped", flipped))
}
