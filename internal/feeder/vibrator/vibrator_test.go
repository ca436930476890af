package vibrator

import "testing"

func TestSim_StartStop(t *testing.T) {
	s := NewSim()
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Running() {
		t.Error("expected running after Start")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Running() {
		t.Error("expected not running after Stop")
	}
}

func TestSim_SetSpeedPercentTracksValue(t *testing.T) {
	s := NewSim()
	if err := s.SetSpeedPercent(60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Speed() != 60 {
		t.Errorf("expected speed 60, got %d", s.Speed())
	}
	if !s.Running() {
		t.Error("expected running with nonzero speed")
	}
}

func TestSim_SetSpeedPercentRejectsOutOfRange(t *testing.T) {
	s := NewSim()
	if err := s.SetSpeedPercent(101); err == nil {
		t.Error("expected an error for an out-of-range percent")
	}
	if err := s.SetSpeedPercent(-1); err == nil {
		t.Error("expected an error for a negative percent")
	}
}

func TestSim_ClosedActuatorRejectsCommands(t *testing.T) {
	s := NewSim()
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("expected Start on a closed actuator to fail")
	}
	if err := s.SetSpeedPercent(50); err == nil {
		t.Error("expected SetSpeedPercent on a closed actuator to fail")
	}
}

func TestNewGPIO_UnknownPinNameFails(t *testing.T) {
	if _, err := NewGPIO("NOT_A_REAL_PIN_NAME"); err == nil {
		t.Error("expected an error resolving an unregistered pin name")
	}
}
