// Package chat holds the conversation domain: messages, the per-room timeline,
// and calendar-day grouping for display.
package chat

import "time"

// Direction tells whether the viewer wrote a message or received it.
type Direction int

const (
	Received Direction = iota
	Sent
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "received"
}

// ReadState is a tri-state read flag. ReadUnknown means the server never
// reported the field.
type ReadState int

const (
	ReadUnknown ReadState = iota
	ReadFalse
	ReadTrue
)

// ReadStateFrom converts an optional wire flag.
func ReadStateFrom(v *bool) ReadState {
	switch {
	case v == nil:
		return ReadUnknown
	case *v:
		return ReadTrue
	default:
		return ReadFalse
	}
}

// Acknowledged reports whether the message is known to be read.
// Unknown counts as not yet acknowledged.
func (r ReadState) Acknowledged() bool {
	return r == ReadTrue
}

func (r ReadState) String() string {
	switch r {
	case ReadTrue:
		return "read"
	case ReadFalse:
		return "unread"
	default:
		return "unknown"
	}
}

// Message is a single chat entry. Only Read changes after creation.
type Message struct {
	Seq       uint64
	Text      string
	Timestamp time.Time
	AuthorID  int64
	Read      ReadState
	ClientID  string
}

// Direction derives the message direction relative to the viewer.
func (m Message) Direction(viewerID int64) Direction {
	if m.AuthorID == viewerID {
		return Sent
	}
	return Received
}
