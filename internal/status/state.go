// Package status tracks the lifecycle of a single conversation view.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/pchat/internal/bus"
)

// State represents where a conversation view is in its activation sequence.
type State string

const (
	Idle      State = "IDLE"
	Resolving State = "RESOLVING"
	Loading   State = "LOADING"
	Active    State = "ACTIVE"
	Failed    State = "FAILED"
	Closed    State = "CLOSED"
)

// validTransitions defines allowed state transitions. Closed is terminal:
// switching rooms builds a fresh machine.
var validTransitions = map[State][]State{
	Idle:      {Resolving, Closed},
	Resolving: {Loading, Failed, Closed},
	Loading:   {Active, Failed, Closed},
	Active:    {Closed},
	Failed:    {Closed},
}

// Machine tracks and enforces view state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	room    string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetRoom records the resolved room id carried on status events.
func (m *Machine) SetRoom(room string) {
	m.mu.Lock()
	m.room = room
	m.mu.Unlock()
}

// Room returns the resolved room id, empty before resolution.
func (m *Machine) Room() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.room
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.NewEvent(bus.KindViewStatus, m.room, StatusChange{
		From: from,
		To:   to,
	}))
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
