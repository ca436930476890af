package feeder

import (
	"fmt"
	"sync"
)

// State is one node of the Source lifecycle: Disconnected ->
// Connecting -> Connected -> StartingGrab -> Grabbing -> StoppingGrab
// -> Connected -> Disconnecting -> Disconnected, plus a terminal Error
// reachable from any state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStartingGrab
	StateGrabbing
	StateStoppingGrab
	StateDisconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateStartingGrab:
		return "StartingGrab"
	case StateGrabbing:
		return "Grabbing"
	case StateStoppingGrab:
		return "StoppingGrab"
	case StateDisconnecting:
		return "Disconnecting"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// adjacent lists the only legal next states for each state. A state
// machine in Error can only leave via an explicit recovery to
// Disconnected; the caller must stop() then start() again.
var adjacent = map[State][]State{
	StateDisconnected:  {StateConnecting, StateError},
	StateConnecting:    {StateConnected, StateError},
	StateConnected:     {StateStartingGrab, StateDisconnecting, StateError},
	StateStartingGrab:  {StateGrabbing, StateError},
	StateGrabbing:      {StateStoppingGrab, StateError},
	StateStoppingGrab:  {StateConnected, StateError},
	StateDisconnecting: {StateDisconnected, StateError},
	StateError:         {StateDisconnected},
}

// StateMachine guards Source transitions: every change passes through
// Transition, which rejects any jump that isn't adjacent to the
// current state.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

// NewStateMachine creates a machine starting in StateDisconnected.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateDisconnected}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to "to" if it is adjacent to the
// current state, or returns an error naming both states.
func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, next := range adjacent[m.state] {
		if next == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal source state transition %s -> %s", m.state, to)
}

// Force sets the state unconditionally. Used only for the Error
// recovery and test setup paths, never from the grab loop itself.
func (m *StateMachine) Force(to State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = to
}
