package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nkaluva9/health-chatbot/internal/bus"
)

// State represents the connection status of a transport gateway.
type State string

const (
	Uninitialized   State = "UNINITIALIZED"
	Connecting      State = "CONNECTING"
	Online          State = "ONLINE"
	FailedToConnect State = "FAILED_TO_CONNECT"
	Ended           State = "ENDED"
)

// KindChanged is the bus event kind published on every transition.
const KindChanged = "connection.status_changed"

// validTransitions defines allowed state transitions. FailedToConnect and
// Ended are terminal.
var validTransitions = map[State][]State{
	Uninitialized: {Connecting, FailedToConnect, Ended},
	Connecting:    {Online, FailedToConnect, Ended},
	Online:        {FailedToConnect, Ended},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.Mutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Uninitialized state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Uninitialized,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// The change event is published while the machine is locked so observers see
// transitions in order.
func (m *Machine) Transition(to State) error {
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
			Kind:      KindChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
