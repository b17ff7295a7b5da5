package live

import (
	"encoding/json"
	"time"
)

// Wire event names.
const (
	EventJoinRoom  = "joinRoom"
	EventLeaveRoom = "leaveRoom"
	EventMessage   = "message"
	EventMarkRead  = "markRead"
)

// Envelope is one JSON text frame on the live connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessagePayload is the data of a message event. Outgoing messages carry
// Room and Timestamp; incoming ones may omit both, and IsRead is optional.
type MessagePayload struct {
	Room      string     `json:"room,omitempty"`
	User      int64      `json:"user"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	IsRead    *bool      `json:"isRead,omitempty"`
	ClientID  string     `json:"clientId,omitempty"`
}

// ReadReceipt is the data of a markRead event: User has read Room.
type ReadReceipt struct {
	User int64  `json:"user"`
	Room string `json:"room"`
}

// NewEnvelope encodes payload under the given event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Delivery is an inbound event handed to room handlers.
type Delivery struct {
	Event      string
	Room       string
	Message    *MessagePayload
	Receipt    *ReadReceipt
	ReceivedAt time.Time
}

// Handler receives deliveries on the connection's read goroutine.
type Handler func(Delivery)
