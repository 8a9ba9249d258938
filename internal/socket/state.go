package socket

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nextvibe/chatsync/internal/bus"
)

// State is a socket connection state.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Open       State = "OPEN"
	Closed     State = "CLOSED"
)

// validTransitions defines allowed state transitions. The loop is
// Idle → Connecting → Open → Closed → Connecting → …; Connecting may fall
// straight back to Closed when the dial fails.
var validTransitions = map[State][]State{
	Idle:       {Connecting},
	Connecting: {Open, Closed},
	Open:       {Closed},
	Closed:     {Connecting},
}

// machine tracks and enforces connection state transitions, publishing each
// change on the bus.
type machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

func newMachine(b *bus.Bus) *machine {
	return &machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "socket.state_changed",
			Timestamp: time.Now(),
			Payload: StateChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StateChange is the payload for socket state change events.
type StateChange struct {
	From State
	To   State
}
