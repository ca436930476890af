// Package pipeline wires one Source through Detector, Tracker,
// GateCounter, and PackagingController into a single processing loop,
// publishing every step's outcome onto the shared event bus. It
// depends only on the feeder/config/tracker/gate/packaging/events
// interfaces, never on gocv or a hardware vibrator directly, so it can
// be exercised in tests with detector.Null and vibrator.Sim.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/config"
	"github.com/feedercounter/vibcounter/internal/feeder/events"
	"github.com/feedercounter/vibcounter/internal/feeder/ferrors"
	"github.com/feedercounter/vibcounter/internal/feeder/gate"
	"github.com/feedercounter/vibcounter/internal/feeder/packaging"
	"github.com/feedercounter/vibcounter/internal/feeder/tracker"
)

// ProcessorState mirrors the lifecycle of the processing loop itself,
// separate from the Source's own state machine.
type ProcessorState int

const (
	ProcessorIdle ProcessorState = iota
	ProcessorRunning
	ProcessorStopped
	ProcessorClosed
)

func (s ProcessorState) String() string {
	switch s {
	case ProcessorIdle:
		return "Idle"
	case ProcessorRunning:
		return "Running"
	case ProcessorStopped:
		return "Stopped"
	case ProcessorClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	ErrProcessorRunning = errors.New("pipeline: processor already running")
	ErrProcessorClosed  = errors.New("pipeline: processor closed")
)

// Recorder is the subset of recorder.Recorder the pipeline needs; kept
// as a local interface so this package doesn't require cgo.
type Recorder interface {
	Write(frame feeder.Frame) error
}

// Processor owns one tick of the frame -> count -> actuation chain.
type Processor struct {
	mu    sync.RWMutex
	state ProcessorState

	manager *config.Manager
	source  feeder.Source
	rec     Recorder
	det     feeder.Detector
	trk     *tracker.Tracker
	gc      *gate.Counter
	pkg     *packaging.Controller
	bus     *events.Bus

	frameCount int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a Processor from its already-constructed components.
// gc and pkg are supplied by the caller because both need config
// values (gate line position depends on frame height, packaging needs
// the two vibrator handles) that this package has no opinion on.
func New(manager *config.Manager, source feeder.Source, rec Recorder, det feeder.Detector,
	trk *tracker.Tracker, gc *gate.Counter, pkg *packaging.Controller, bus *events.Bus) *Processor {
	return &Processor{
		manager: manager,
		source:  source,
		rec:     rec,
		det:     det,
		trk:     trk,
		gc:      gc,
		pkg:     pkg,
		bus:     bus,
		state:   ProcessorIdle,
	}
}

// State returns the processor's current lifecycle state.
func (p *Processor) State() ProcessorState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Start launches the source and the consuming loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case ProcessorRunning:
		return ErrProcessorRunning
	case ProcessorClosed:
		return ErrProcessorClosed
	}

	if err := p.source.Start(ctx); err != nil {
		return fmt.Errorf("starting source: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state = ProcessorRunning
	p.frameCount = 0

	p.wg.Add(1)
	go p.loop()

	return nil
}

// Stop halts the consuming loop and the source; safe to call once the
// processor is running.
func (p *Processor) Stop() error {
	p.mu.Lock()
	if p.state != ProcessorRunning {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.state = ProcessorStopped
	p.mu.Unlock()

	p.wg.Wait()
	return p.source.Stop()
}

// Close stops the processor (if running) and releases the detector and
// source. A Processor is not reusable after Close.
func (p *Processor) Close() error {
	p.mu.Lock()
	if p.state == ProcessorClosed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	running := p.state == ProcessorRunning
	p.state = ProcessorClosed
	p.mu.Unlock()

	if running {
		p.cancel()
		p.wg.Wait()
	}

	var errs []error
	if err := p.source.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := p.source.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.det.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing processor: %v", errs)
	}
	return nil
}

// loop consumes frames from the source's mailbox until ctx is done,
// running each through the full detect -> track -> gate -> package
// chain, one frame at a time (no overlap, matching the mailbox's
// take-and-clear contract).
func (p *Processor) loop() {
	defer p.wg.Done()

	box := p.source.Mailbox()
	for {
		frame, ok := box.Take(p.ctx)
		if !ok {
			return
		}
		p.processTick(frame)
	}
}

func (p *Processor) processTick(frame feeder.Frame) {
	p.bus.Publish(events.Event{Kind: events.KindFrameCaptured, Data: frame})
	p.bus.Publish(events.Event{Kind: events.KindFPS, Data: p.source.FPS()})

	if p.rec != nil {
		if err := p.rec.Write(frame); err != nil {
			p.bus.Publish(events.Event{Kind: events.KindSourceError,
				Data: ferrors.Wrap(ferrors.KindFrameMalformed, "recorder write", err)})
		}
	}

	snapshot := p.manager.Snapshot()
	params := snapshot.Detection.ToParams()
	if snapshot.Detection.UltraHighSpeedMode && p.source.FPS() >= float64(snapshot.Detection.HighSpeedFPSCutover) {
		hs := snapshot.Detection.HighSpeedOverride()
		params = hs.ToParams()
	}

	objects, _, err := p.det.Process(frame, params)
	if err != nil {
		p.bus.Publish(events.Event{Kind: events.KindSourceError,
			Data: ferrors.Wrap(ferrors.KindFrameMalformed, "detector", err)})
		return
	}

	p.frameCount++
	tracks := p.trk.Update(objects, p.frameCount)

	if !snapshot.Gate.EnableGateCounting {
		return
	}
	if n := p.gc.Update(tracks, p.frameCount); n > 0 {
		p.bus.Publish(events.Event{Kind: events.KindObjectsCrossedGate, Data: p.gc.Count()})
		p.pkg.CountChanged(p.gc.Count())
	}
}
