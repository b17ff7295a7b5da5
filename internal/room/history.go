package room

import (
	"context"
	"fmt"

	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/restapi"
)

// HistoryError wraps a failed history fetch.
type HistoryError struct {
	RoomID string
	Err    error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("load history of room %s: %v", e.RoomID, e.Err)
}

func (e *HistoryError) Unwrap() error { return e.Err }

// MessageSource fetches persisted room entries.
type MessageSource interface {
	GetMessages(ctx context.Context, roomID string) ([]restapi.StoredMessage, error)
}

// HistoryLoader turns stored entries into timeline messages.
type HistoryLoader struct {
	src MessageSource
}

// NewHistoryLoader creates a loader.
func NewHistoryLoader(src MessageSource) *HistoryLoader {
	return &HistoryLoader{src: src}
}

// Load fetches the room log in server order.
func (l *HistoryLoader) Load(ctx context.Context, roomID string) ([]chat.Message, error) {
	stored, err := l.src.GetMessages(ctx, roomID)
	if err != nil {
		return nil, &HistoryError{RoomID: roomID, Err: err}
	}
	out := make([]chat.Message, 0, len(stored))
	for _, s := range stored {
		out = append(out, Normalize(s))
	}
	return out, nil
}

// Normalize maps one stored entry to the timeline shape.
func Normalize(s restapi.StoredMessage) chat.Message {
	return chat.Message{
		Text:      s.Content,
		Timestamp: s.Timestamp,
		AuthorID:  s.User,
		Read:      chat.ReadStateFrom(s.IsRead),
	}
}
