package feeder

import "testing"

func TestStateMachine_InitialStateIsDisconnected(t *testing.T) {
	m := NewStateMachine()
	if m.State() != StateDisconnected {
		t.Errorf("expected Disconnected, got %s", m.State())
	}
}

func TestStateMachine_AcceptsAdjacentTransitions(t *testing.T) {
	m := NewStateMachine()
	path := []State{
		StateConnecting, StateConnected, StateStartingGrab, StateGrabbing,
		StateStoppingGrab, StateConnected, StateDisconnecting, StateDisconnected,
	}
	for _, next := range path {
		if err := m.Transition(next); err != nil {
			t.Fatalf("unexpected error transitioning to %s: %v", next, err)
		}
	}
}

func TestStateMachine_RejectsNonAdjacentJump(t *testing.T) {
	m := NewStateMachine()
	if err := m.Transition(StateGrabbing); err == nil {
		t.Error("expected error for Disconnected -> Grabbing jump")
	}
	if m.State() != StateDisconnected {
		t.Error("rejected transition must not change state")
	}
}

func TestStateMachine_ErrorReachableFromAnyState(t *testing.T) {
	m := NewStateMachine()
	_ = m.Transition(StateConnecting)
	if err := m.Transition(StateError); err != nil {
		t.Errorf("unexpected error entering Error state: %v", err)
	}
}

func TestStateMachine_ErrorOnlyRecoversToDisconnected(t *testing.T) {
	m := NewStateMachine()
	_ = m.Transition(StateConnecting)
	_ = m.Transition(StateError)

	if err := m.Transition(StateConnected); err == nil {
		t.Error("expected error recovering directly from Error to Connected")
	}
	if err := m.Transition(StateDisconnected); err != nil {
		t.Errorf("unexpected error recovering to Disconnected: %v", err)
	}
}
