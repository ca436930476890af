package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/config"
	"github.com/feedercounter/vibcounter/internal/feeder/detector"
	"github.com/feedercounter/vibcounter/internal/feeder/events"
	"github.com/feedercounter/vibcounter/internal/feeder/gate"
	"github.com/feedercounter/vibcounter/internal/feeder/packaging"
	"github.com/feedercounter/vibcounter/internal/feeder/tracker"
	"github.com/feedercounter/vibcounter/internal/feeder/vibrator"
)

// fakeSource feeds a fixed number of solid frames into its mailbox on
// Start, then leaves the mailbox empty; it needs no gocv dependency.
type fakeSource struct {
	box       *feeder.Mailbox
	numFrames int
	state     feeder.State
}

func newFakeSource(numFrames int) *fakeSource {
	return &fakeSource{box: feeder.NewMailbox(), numFrames: numFrames, state: feeder.StateDisconnected}
}

func (s *fakeSource) Start(ctx context.Context) error {
	s.state = feeder.StateGrabbing
	go func() {
		for i := 0; i < s.numFrames; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.box.Put(feeder.Frame{Pix: make([]byte, 64*48*3), Width: 64, Height: 48, Channels: 3})
			time.Sleep(time.Millisecond)
		}
	}()
	return nil
}
func (s *fakeSource) Stop() error         { s.state = feeder.StateConnected; return nil }
func (s *fakeSource) State() feeder.State { return s.state }
func (s *fakeSource) FPS() float64        { return 30 }
func (s *fakeSource) Mailbox() *feeder.Mailbox { return s.box }
func (s *fakeSource) Close() error         { s.box.Close(); return nil }

var _ feeder.Source = (*fakeSource)(nil)

// staggeredRisingDetector reports one object descending toward the
// gate line immediately, and a second, separately-positioned object
// that only starts descending partway through the run. This makes the
// two crossings land in different ticks rather than the same one, so
// a test can tell "per-tick delta" apart from "cumulative count": by
// the second crossing the delta is still 1 but the cumulative count
// is 2.
type staggeredRisingDetector struct {
	calls  int
	yA, yB int
}

func (d *staggeredRisingDetector) Process(frame feeder.Frame, cfg *feeder.DetectionParams) ([]feeder.DetectedObject, feeder.ROI, error) {
	roi := feeder.ResolveROI(cfg, frame.Width, frame.Height)
	d.calls++

	d.yA += 20
	objs := []feeder.DetectedObject{
		{X: 100, Y: d.yA, W: 10, H: 10, CX: 105, CY: float64(d.yA) + 5, Area: 100},
	}
	if d.calls > 15 {
		d.yB += 20
		objs = append(objs, feeder.DetectedObject{X: 300, Y: d.yB, W: 10, H: 10, CX: 305, CY: float64(d.yB) + 5, Area: 100})
	}
	return objs, roi, nil
}
func (d *staggeredRisingDetector) Reset()       {}
func (d *staggeredRisingDetector) Close() error { return nil }

var _ feeder.Detector = (*staggeredRisingDetector)(nil)

func newTestProcessor(t *testing.T, numFrames int) (*Processor, *events.Bus) {
	t.Helper()
	cfg := config.Default()
	cfg.Gate.EnableGateCounting = true
	mgr, err := config.NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	bus := events.NewBus()
	src := newFakeSource(numFrames)
	trk := tracker.New(cfg.Tracking)
	gc := gate.New(cfg.Gate, cfg.Tracking, cfg.Camera.Height)
	pkg := packaging.New(cfg.Packaging, bus, vibrator.NewSim(), vibrator.NewSim())

	p := New(mgr, src, nil, detector.Null{}, trk, gc, pkg, bus)
	return p, bus
}

func TestProcessor_StartProcessesFramesThenStopCleanly(t *testing.T) {
	p, bus := newTestProcessor(t, 10)
	defer bus.Close()

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.State() != ProcessorRunning {
		t.Fatalf("expected Running, got %s", p.State())
	}

	time.Sleep(50 * time.Millisecond)

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.State() != ProcessorStopped {
		t.Errorf("expected Stopped, got %s", p.State())
	}
}

func TestProcessor_StartTwiceFails(t *testing.T) {
	p, bus := newTestProcessor(t, 1)
	defer bus.Close()

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(ctx); err != ErrProcessorRunning {
		t.Errorf("expected ErrProcessorRunning, got %v", err)
	}
}

func TestProcessor_CloseAfterStartStopsLoop(t *testing.T) {
	p, bus := newTestProcessor(t, 5)
	defer bus.Close()

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.State() != ProcessorClosed {
		t.Errorf("expected Closed, got %s", p.State())
	}

	if err := p.Close(); err != ErrProcessorClosed {
		t.Errorf("expected ErrProcessorClosed on double close, got %v", err)
	}
}

func TestProcessor_GateCrossingEventCarriesCumulativeCount(t *testing.T) {
	cfg := config.Default()
	cfg.Gate.EnableGateCounting = true
	mgr, err := config.NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	bus := events.NewBus()
	src := newFakeSource(60)
	trk := tracker.New(cfg.Tracking)
	gc := gate.New(cfg.Gate, cfg.Tracking, cfg.Camera.Height)
	pkg := packaging.New(cfg.Packaging, bus, vibrator.NewSim(), vibrator.NewSim())
	p := New(mgr, src, nil, &staggeredRisingDetector{}, trk, gc, pkg, bus)

	sub := bus.Subscribe()
	var payloads []int
	done := make(chan struct{})
	go func() {
		for ev := range sub {
			if ev.Kind == events.KindObjectsCrossedGate {
				payloads = append(payloads, ev.Data.(int))
			}
		}
		close(done)
	}()

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	p.Stop()
	bus.Close()
	<-done

	if len(payloads) != 2 {
		t.Fatalf("expected exactly two gate crossing events, got %v", payloads)
	}
	for i, got := range payloads {
		want := i + 1
		if got != want {
			t.Errorf("crossing event %d: got data=%d, want cumulative count %d", i, got, want)
		}
	}
	if got := payloads[len(payloads)-1]; got != gc.Count() {
		t.Errorf("last event data=%d does not match final gc.Count()=%d", got, gc.Count())
	}
}

func TestProcessor_NullDetectorNeverCrossesGate(t *testing.T) {
	p, bus := newTestProcessor(t, 20)
	sub := bus.Subscribe()

	crossed := false
	done := make(chan struct{})
	go func() {
		for ev := range sub {
			if ev.Kind == events.KindObjectsCrossedGate {
				crossed = true
			}
		}
		close(done)
	}()

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	p.Stop()
	bus.Close()
	<-done

	if crossed {
		t.Error("expected NullDetector to never produce a gate crossing")
	}
}
