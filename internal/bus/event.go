package bus

import "time"

// Event kinds published by the conversation core. Subscribers filter by
// namespace prefix ("view.", "timeline.", "message.").
const (
	KindViewStatus      = "view.status_changed"
	KindViewFailed      = "view.failed"
	KindTimelineChanged = "timeline.changed"
	KindReadAcked       = "timeline.read_acked"
	KindReceiptApplied  = "timeline.receipt_applied"
	KindSendAck         = "message.send_ack"
	KindSendFailed      = "message.send_failed"
	KindLiveDown        = "live.disconnected"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Room      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind, room string, payload any) Event {
	return Event{Kind: kind, Room: room, Timestamp: time.Now(), Payload: payload}
}
