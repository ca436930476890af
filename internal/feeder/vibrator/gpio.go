package vibrator

import (
	"fmt"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// hostInitOnce guards the single process-wide periph.io platform
// driver registration; every GPIO backend shares it.
var (
	hostInitOnce sync.Once
	hostInitErr  error
)

func ensureHostInit() error {
	hostInitOnce.Do(func() {
		_, hostInitErr = host.Init()
	})
	return hostInitErr
}

// GPIO drives a real vibratory actuator's speed over a PWM-capable
// GPIO pin, resolved by name via gpioreg. SetSpeedPercent(0..100) maps
// onto a PWM duty cycle; Stop issues a hard Out(Low).
type GPIO struct {
	mu      sync.Mutex
	pin     gpio.PinIO
	running bool
	speed   int
	closed  bool
}

// NewGPIO resolves pinName through gpioreg and returns a vibrator
// backend driving it. Fails if the platform has not registered a pin
// of that name.
func NewGPIO(pinName string) (*GPIO, error) {
	if err := ensureHostInit(); err != nil {
		return nil, fmt.Errorf("vibrator: periph host init: %w", err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("vibrator: no GPIO pin registered as %q", pinName)
	}
	return &GPIO{pin: p}, nil
}

func (g *GPIO) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("vibrator: start on closed actuator")
	}
	g.running = true
	return nil
}

func (g *GPIO) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("vibrator: stop on closed actuator")
	}
	if err := g.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("vibrator: hard stop: %w", err)
	}
	g.running = false
	g.speed = 0
	return nil
}

func (g *GPIO) SetSpeedPercent(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("vibrator: speed percent %d out of range [0,100]", pct)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("vibrator: set speed on closed actuator")
	}

	if pct == 0 {
		if err := g.pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("vibrator: out low: %w", err)
		}
	} else {
		duty := pct * gpio.Max / 100
		if err := g.pin.PWM(duty); err != nil {
			return fmt.Errorf("vibrator: pwm %d%%: %w", pct, err)
		}
	}

	g.speed = pct
	g.running = pct > 0
	return nil
}

func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	err := g.pin.Out(gpio.Low)
	g.closed = true
	g.running = false
	return err
}
