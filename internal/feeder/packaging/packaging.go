// Package packaging drives vibrator actuators as a function of count
// progress and terminates the batch once the target is reached.
package packaging

import (
	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/config"
	"github.com/feedercounter/vibcounter/internal/feeder/events"
	"github.com/feedercounter/vibcounter/internal/feeder/ferrors"
)

// BatchState is one node of the packaging lifecycle. Paused is
// orthogonal to the others and preserves the current count and speed
// on resume.
type BatchState int

const (
	BatchIdle BatchState = iota
	BatchRunning
	BatchSlowing
	BatchCreeping
	BatchCompleted
	BatchPaused
)

func (s BatchState) String() string {
	switch s {
	case BatchIdle:
		return "Idle"
	case BatchRunning:
		return "Running"
	case BatchSlowing:
		return "Slowing"
	case BatchCreeping:
		return "Creeping"
	case BatchCompleted:
		return "Completed"
	case BatchPaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Controller consumes count events and selects one of five discrete
// vibrator speeds by threshold ratio, emitting an anticipated-stop
// signal ahead of the nominal target to compensate for mechanical
// latency. Thread-confined to the processing goroutine.
type Controller struct {
	cfg   config.PackagingConfig
	bus   *events.Bus
	a, b  feeder.Vibrator

	state        BatchState
	currentCount int
	speed        feeder.Speed
	completed    bool
	preResumeState BatchState
	commandFailed  bool
}

// New creates a controller driving vibrators a and b, publishing
// lifecycle events onto bus.
func New(cfg config.PackagingConfig, bus *events.Bus, a, b feeder.Vibrator) *Controller {
	return &Controller{
		cfg:   cfg,
		bus:   bus,
		a:     a,
		b:     b,
		state: BatchIdle,
		speed: feeder.SpeedStop,
	}
}

// SetConfig swaps in new thresholds, taking effect on the next count event.
func (c *Controller) SetConfig(cfg config.PackagingConfig) {
	c.cfg = cfg
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() BatchState { return c.state }

// Speed returns the currently commanded speed.
func (c *Controller) Speed() feeder.Speed { return c.speed }

// Count returns the current progress count.
func (c *Controller) Count() int { return c.currentCount }

// Pause freezes the controller's current count and speed; commands
// already in flight are not retried until Resume.
func (c *Controller) Pause() {
	if c.state == BatchPaused || c.state == BatchCompleted {
		return
	}
	c.preResumeState = c.state
	c.state = BatchPaused
}

// Resume returns to the state Pause was called from.
func (c *Controller) Resume() {
	if c.state != BatchPaused {
		return
	}
	c.state = c.preResumeState
}

// ResetPackaging starts a fresh batch: count back to zero, speed to
// FULL-eligible idle, completion flag cleared.
func (c *Controller) ResetPackaging() {
	c.state = BatchIdle
	c.currentCount = 0
	c.speed = feeder.SpeedStop
	c.completed = false
}

// CountChanged applies a new progress count and, unless the batch is
// paused or already completed, recomputes and commands the speed
// schedule. A previously rejected command is re-issued on the next
// call that is not paused, including after completion. Returns the
// speed that was commanded (equal to the previous speed if no
// threshold was crossed).
func (c *Controller) CountChanged(n int) feeder.Speed {
	c.currentCount = n
	if c.state == BatchPaused {
		return c.speed
	}
	if c.state == BatchCompleted {
		if c.commandFailed {
			c.commandSpeed(c.speed)
		}
		return c.speed
	}
	if c.state == BatchIdle {
		c.state = BatchRunning
	}

	next := c.selectSpeed(n)
	if next != c.speed {
		c.speed = next
		c.state = stateForSpeed(next)
		c.commandSpeed(next)
		c.bus.Publish(events.Event{Kind: events.KindVibratorSpeedChanged, Data: next})
	} else if c.commandFailed {
		c.commandSpeed(c.speed)
	}

	if c.isComplete(n) && !c.completed {
		c.completed = true
		c.state = BatchCompleted
		c.bus.Publish(events.Event{Kind: events.KindPackagingCompleted, Data: n})
	}

	return c.speed
}

// stateForSpeed maps a commanded speed onto the Running/Slowing/
// Creeping lifecycle states; FULL and MEDIUM both read as Running.
func stateForSpeed(speed feeder.Speed) BatchState {
	switch speed {
	case feeder.SpeedSlow:
		return BatchSlowing
	case feeder.SpeedCreep:
		return BatchCreeping
	default:
		return BatchRunning
	}
}

// isComplete reports whether n has reached the advance-stop threshold.
func (c *Controller) isComplete(n int) bool {
	return n >= c.cfg.TargetCount-c.cfg.AdvanceStopCount
}

// selectSpeed maps a progress ratio to one of the five discrete
// speeds, per the reference threshold table.
func (c *Controller) selectSpeed(n int) feeder.Speed {
	if c.isComplete(n) {
		return feeder.SpeedStop
	}

	r := float64(n) / float64(c.cfg.TargetCount)
	switch {
	case r < c.cfg.SpeedFullThreshold:
		return feeder.SpeedFull
	case r < c.cfg.SpeedMediumThreshold:
		return feeder.SpeedMedium
	case r < c.cfg.SpeedSlowThreshold:
		return feeder.SpeedSlow
	default:
		return feeder.SpeedCreep
	}
}

// commandSpeed issues the set-speed command to both actuators. A
// rejected command does not revert the intended speed; it is
// surfaced as a vibratorError and retried on the next count event.
func (c *Controller) commandSpeed(speed feeder.Speed) {
	pct := speed.Percent(
		c.cfg.VibratorSpeedFull,
		c.cfg.VibratorSpeedMedium,
		c.cfg.VibratorSpeedSlow,
		c.cfg.VibratorSpeedCreep,
	)

	var firstErr error
	if err := c.a.SetSpeedPercent(pct); err != nil {
		firstErr = err
	}
	if err := c.b.SetSpeedPercent(pct); err != nil && firstErr == nil {
		firstErr = err
	}
	c.commandFailed = firstErr != nil
	if firstErr != nil {
		c.bus.Publish(events.Event{
			Kind: events.KindVibratorError,
			Data: ferrors.Wrap(ferrors.KindActuatorFailed, "vibrator speed command rejected", firstErr),
		})
	}
}
