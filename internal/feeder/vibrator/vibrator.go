// Package vibrator provides the feeder.Vibrator actuator
// implementations: an in-memory simulation for tests and
// hardware-free operation, and a real GPIO-driven backend.
package vibrator

import (
	"fmt"
	"sync"

	"github.com/feedercounter/vibcounter/internal/feeder"
)

// Sim is an in-memory feeder.Vibrator that always acknowledges.
// Safe for concurrent use.
type Sim struct {
	mu      sync.Mutex
	running bool
	speed   int
	closed  bool
}

// NewSim creates a simulated vibrator, stopped.
func NewSim() *Sim {
	return &Sim{}
}

func (s *Sim) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vibrator: start on closed actuator")
	}
	s.running = true
	return nil
}

func (s *Sim) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.speed = 0
	return nil
}

func (s *Sim) SetSpeedPercent(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("vibrator: speed percent %d out of range [0,100]", pct)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vibrator: set speed on closed actuator")
	}
	s.speed = pct
	s.running = pct > 0
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.running = false
	return nil
}

// Speed returns the currently acknowledged duty percentage.
func (s *Sim) Speed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Running reports whether the simulated actuator believes it is
// currently running.
func (s *Sim) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

var _ feeder.Vibrator = (*Sim)(nil)
