//go:build cgo

package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/events"
	"github.com/feedercounter/vibcounter/internal/feeder/ferrors"
)

// File is a FileSource: a restartable, seekable frame producer backed
// by gocv.VideoCapture opened against a path rather than a live
// device, self-paced by a declared FPS via a ticker, one ticker
// driving one source.
type File struct {
	mu sync.Mutex

	path        string
	declaredFPS int

	capture *gocv.VideoCapture
	machine *feeder.StateMachine
	box     *feeder.Mailbox
	fpsEst  *fpsEstimator
	bus     *events.Bus

	paused     bool
	lastFrame  feeder.Frame
	frameIndex int

	cancel   context.CancelFunc
	workerWG sync.WaitGroup
	stopOnce sync.Once
}

// NewFile creates a file-backed source over path, self-paced at
// declaredFPS, publishing lifecycle events onto bus.
func NewFile(path string, declaredFPS int, bus *events.Bus) *File {
	return &File{
		path:        path,
		declaredFPS: declaredFPS,
		machine:     feeder.NewStateMachine(),
		box:         feeder.NewMailbox(),
		fpsEst:      newFPSEstimator(),
		bus:         bus,
	}
}

// Open opens the backing file, transitioning Disconnected ->
// Connecting -> Connected.
func (f *File) Open() error {
	if err := f.machine.Transition(feeder.StateConnecting); err != nil {
		return err
	}

	cap, err := gocv.VideoCaptureFile(f.path)
	if err != nil {
		f.machine.Force(feeder.StateError)
		return ferrors.Wrap(ferrors.KindDeviceNotFound, fmt.Sprintf("opening file source %q", f.path), err)
	}
	if !cap.IsOpened() {
		cap.Close()
		f.machine.Force(feeder.StateError)
		return ferrors.New(ferrors.KindDeviceNotFound, fmt.Sprintf("file source %q not found or unreadable", f.path))
	}

	f.mu.Lock()
	f.capture = cap
	f.mu.Unlock()

	return f.machine.Transition(feeder.StateConnected)
}

// Start begins the self-paced read loop.
func (f *File) Start(ctx context.Context) error {
	if err := f.machine.Transition(feeder.StateStartingGrab); err != nil {
		return err
	}

	grabCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.stopOnce = sync.Once{}

	if err := f.machine.Transition(feeder.StateGrabbing); err != nil {
		cancel()
		return err
	}

	f.workerWG.Add(1)
	go f.playbackLoop(grabCtx)
	return nil
}

// playbackLoop reads one frame per tick at the declared FPS, producing
// the last frame repeatedly while paused.
func (f *File) playbackLoop(ctx context.Context) {
	defer f.workerWG.Done()

	fps := f.declaredFPS
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.readTick(&mat, false)
		}
	}
}

// readTick reads and publishes the next frame. While paused it
// republishes the last frame instead, unless force is set.
func (f *File) readTick(mat *gocv.Mat, force bool) {
	f.mu.Lock()
	paused := f.paused
	f.mu.Unlock()

	if paused && !force {
		if !f.lastFrame.Empty() {
			f.box.Put(f.lastFrame)
		}
		return
	}

	if ok := f.capture.Read(mat); !ok || mat.Empty() {
		f.bus.Publish(events.Event{Kind: events.KindPlaybackFinished, Data: f.frameIndex})
		return
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(*mat, &rgb, gocv.ColorBGRToRGB)

	now := time.Now().UnixNano()
	f.fpsEst.Observe(now)
	frame := feeder.Frame{
		Pix:         rgb.ToBytes(),
		Width:       rgb.Cols(),
		Height:      rgb.Rows(),
		Channels:    rgb.Channels(),
		MonotonicNS: now,
	}

	f.mu.Lock()
	f.lastFrame = frame
	f.frameIndex++
	f.mu.Unlock()

	f.box.Put(frame)
}

// Pause freezes playback; readTick keeps republishing the last frame.
func (f *File) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

// Resume continues playback from the current position.
func (f *File) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

// Seek jumps to the given frame index.
func (f *File) Seek(frameIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capture == nil {
		return fmt.Errorf("file source: seek before open")
	}
	f.capture.Set(gocv.VideoCapturePosFrames, float64(frameIndex))
	f.frameIndex = frameIndex
	return nil
}

// Step advances (or, with a negative delta, rewinds) by delta frames
// while paused, producing exactly one new frame.
func (f *File) Step(delta int) error {
	f.mu.Lock()
	// frameIndex is one past the last frame read.
	target := f.frameIndex - 1 + delta
	f.mu.Unlock()
	if target < 0 {
		target = 0
	}
	if err := f.Seek(target); err != nil {
		return err
	}

	mat := gocv.NewMat()
	defer mat.Close()
	f.readTick(&mat, true)
	return nil
}

// Stop cancels the playback loop and waits up to stopWait for it to exit.
func (f *File) Stop() error {
	var timedOut bool
	f.stopOnce.Do(func() {
		if err := f.machine.Transition(feeder.StateStoppingGrab); err != nil {
			return
		}
		if f.cancel != nil {
			f.cancel()
		}

		done := make(chan struct{})
		go func() {
			f.workerWG.Wait()
			close(done)
		}()

		select {
		case <-done:
			f.machine.Transition(feeder.StateConnected)
		case <-time.After(stopWait):
			timedOut = true
			f.machine.Force(feeder.StateError)
		}
	})
	if timedOut {
		return ferrors.New(ferrors.KindThreadInvariantBroken, "file source playback worker did not exit within the stop deadline")
	}
	return nil
}

// State returns the file source's current lifecycle state.
func (f *File) State() feeder.State { return f.machine.State() }

// FPS returns the sliding-window playback-rate estimate.
func (f *File) FPS() float64 { return f.fpsEst.FPS() }

// Mailbox returns the single-slot frame handoff the playback loop feeds.
func (f *File) Mailbox() *feeder.Mailbox { return f.box }

// Close stops playback and releases the backing file handle.
func (f *File) Close() error {
	_ = f.Stop()
	f.machine.Force(feeder.StateDisconnecting)
	f.box.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capture != nil {
		if err := f.capture.Close(); err != nil {
			f.machine.Force(feeder.StateError)
			return fmt.Errorf("file source: closing capture: %w", err)
		}
	}
	f.machine.Force(feeder.StateDisconnected)
	return nil
}

var _ feeder.Source = (*File)(nil)
