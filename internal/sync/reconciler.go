package sync

import (
	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/live"
	"go.uber.org/zap"
)

// replay applies deliveries queued before seeding, in arrival order.
func (e *Engine) replay(v *roomView) int {
	n := len(v.pending)
	for _, d := range v.pending {
		e.apply(v, d)
	}
	v.pending = nil
	return n
}

// apply merges one live delivery into a seeded timeline.
func (e *Engine) apply(v *roomView, d live.Delivery) {
	switch {
	case d.Message != nil:
		e.applyMessage(v, d.Message, d)
	case d.Receipt != nil:
		n, err := v.tracker.ApplyReceipt(d.Receipt.User)
		if err != nil {
			e.logger.DPanic("apply read receipt", zap.String("room", v.roomID), zap.Error(err))
			return
		}
		if n > 0 {
			e.changed(v)
		}
	}
}

func (e *Engine) applyMessage(v *roomView, p *live.MessagePayload, d live.Delivery) {
	// Our own broadcast coming back: already on the timeline.
	if v.timeline.HasClientID(p.ClientID) {
		return
	}

	ts := d.ReceivedAt
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}
	m, err := v.timeline.Append(chat.Message{
		Text:      p.Message,
		Timestamp: ts,
		AuthorID:  p.User,
		Read:      chat.ReadStateFrom(p.IsRead),
		ClientID:  p.ClientID,
	})
	if err != nil {
		e.logger.DPanic("append live message", zap.String("room", v.roomID), zap.Error(err))
		return
	}
	v.tracker.TailChanged(m.Seq)
	e.changed(v)
}
