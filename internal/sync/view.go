package sync

import (
	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/live"
	"github.com/matheus3301/pchat/internal/readtrack"
	"github.com/matheus3301/pchat/internal/status"
)

// roomView is everything bound to one activation of a conversation.
// A room switch discards it and builds a new one with a higher gen.
type roomView struct {
	gen     uint64
	peerID  int64
	roomID  string
	machine *status.Machine

	timeline *chat.Timeline
	tracker  *readtrack.Tracker

	// live deliveries received before the timeline was seeded
	pending []live.Delivery
}

func newRoomView(gen uint64, peerID int64, m *status.Machine) *roomView {
	return &roomView{
		gen:     gen,
		peerID:  peerID,
		machine: m,
	}
}

func (v *roomView) bind(roomID string, tl *chat.Timeline) {
	v.roomID = roomID
	v.timeline = tl
	v.machine.SetRoom(roomID)
}
