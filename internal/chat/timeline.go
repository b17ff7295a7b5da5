package chat

import (
	"errors"
	"fmt"
)

// SeedState is the lifecycle of a Timeline.
type SeedState int

const (
	Unseeded SeedState = iota
	Seeded
)

func (s SeedState) String() string {
	if s == Seeded {
		return "SEEDED"
	}
	return "UNSEEDED"
}

// ErrAlreadySeeded is returned by Seed on a timeline that already holds history.
var ErrAlreadySeeded = errors.New("timeline already seeded")

// NotSeededError is returned when an operation other than Seed runs before
// history was loaded. It signals a programming error in the caller.
type NotSeededError struct {
	Op string
}

func (e *NotSeededError) Error() string {
	return fmt.Sprintf("timeline: %s before seed", e.Op)
}

// Timeline is the ordered message log of one active room.
// It is not safe for concurrent use; the sync engine owns it on a single goroutine.
type Timeline struct {
	viewerID int64
	state    SeedState
	msgs     []Message
	nextSeq  uint64
}

// NewTimeline creates an unseeded timeline for the given viewer.
func NewTimeline(viewerID int64) *Timeline {
	return &Timeline{viewerID: viewerID}
}

// ViewerID returns the id used to derive message direction.
func (t *Timeline) ViewerID() int64 {
	return t.viewerID
}

// State returns the current seed state.
func (t *Timeline) State() SeedState {
	return t.state
}

// Seed installs the room history, preserving its order.
func (t *Timeline) Seed(history []Message) error {
	if t.state == Seeded {
		return ErrAlreadySeeded
	}
	t.msgs = make([]Message, 0, len(history))
	for _, m := range history {
		t.push(m)
	}
	t.state = Seeded
	return nil
}

// Append adds a message at the tail. Arrival order wins over timestamps:
// a message older than the current tail still lands last.
func (t *Timeline) Append(m Message) (Message, error) {
	if t.state != Seeded {
		return Message{}, &NotSeededError{Op: "append"}
	}
	return t.push(m), nil
}

func (t *Timeline) push(m Message) Message {
	t.nextSeq++
	m.Seq = t.nextSeq
	t.msgs = append(t.msgs, m)
	return m
}

// MarkAuthoredByOthersAsRead flips every counterpart message that is not yet
// acknowledged. Returns how many changed.
func (t *Timeline) MarkAuthoredByOthersAsRead() (int, error) {
	if t.state != Seeded {
		return 0, &NotSeededError{Op: "mark others read"}
	}
	return t.markWhere(func(m Message) bool { return m.AuthorID != t.viewerID }), nil
}

// MarkAuthoredByViewerAsRead flips the viewer's own messages once the
// counterpart confirms reading them.
func (t *Timeline) MarkAuthoredByViewerAsRead() (int, error) {
	if t.state != Seeded {
		return 0, &NotSeededError{Op: "mark own read"}
	}
	return t.markWhere(func(m Message) bool { return m.AuthorID == t.viewerID }), nil
}

func (t *Timeline) markWhere(match func(Message) bool) int {
	n := 0
	for i := range t.msgs {
		if match(t.msgs[i]) && !t.msgs[i].Read.Acknowledged() {
			t.msgs[i].Read = ReadTrue
			n++
		}
	}
	return n
}

// Messages returns a copy of the log in arrival order.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.msgs)
}

// Tail returns the newest message.
func (t *Timeline) Tail() (Message, bool) {
	if len(t.msgs) == 0 {
		return Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

// Unread counts the read boundary: counterpart messages not yet acknowledged.
func (t *Timeline) Unread() int {
	n := 0
	for _, m := range t.msgs {
		if m.AuthorID != t.viewerID && !m.Read.Acknowledged() {
			n++
		}
	}
	return n
}

// HasClientID reports whether a message with the given correlation id is present.
func (t *Timeline) HasClientID(id string) bool {
	if id == "" {
		return false
	}
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if t.msgs[i].ClientID == id {
			return true
		}
	}
	return false
}
