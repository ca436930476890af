//go:build cgo

package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/ferrors"
)

// fourccMJPEG is the FourCC code for Motion JPEG, widely supported by
// USB webcams and the most compatible codec for V4L2 capture.
const fourccMJPEG = 0x47504A4D

// retrieveTimeout is not referenced by the grab loop: each Read blocks
// until the device returns a frame or fails, and ctx cancellation is
// checked only between reads.
const retrieveTimeout = 500 * time.Millisecond

// grabRetries is the number of transient-retrieval retries before a
// grab failure is treated as fatal.
const grabRetries = 2

// grabBackoff is the pause between retrieval retries.
const grabBackoff = 10 * time.Millisecond

// stopWait is the hard ceiling Stop() will block the caller for.
const stopWait = 2 * time.Second

// Camera is a GoCVCamera: a live capture device opened through
// gocv.VideoCapture with the V4L2 backend, explicit FourCC, and
// explicit width/height/fps negotiation plus a warm-up read.
type Camera struct {
	mu sync.Mutex

	deviceID int
	width    int
	height   int
	fps      int
	format   feeder.PixelFormat

	webcam  *gocv.VideoCapture
	machine *feeder.StateMachine
	box     *feeder.Mailbox
	fpsEst  *fpsEstimator

	cancel    context.CancelFunc
	workerWG  sync.WaitGroup
	stopOnce  sync.Once
	lastError error
}

// NewCamera creates a camera source bound to deviceID, not yet opened.
func NewCamera(deviceID int) *Camera {
	return &Camera{
		deviceID: deviceID,
		format:   feeder.PixelFormatMono8,
		machine:  feeder.NewStateMachine(),
		box:      feeder.NewMailbox(),
		fpsEst:   newFPSEstimator(),
	}
}

// Open negotiates width/height/fps against the device and transitions
// Disconnected -> Connecting -> Connected.
func (c *Camera) Open(width, height, fps int) error {
	if err := c.machine.Transition(feeder.StateConnecting); err != nil {
		return err
	}

	webcam, err := gocv.OpenVideoCaptureWithAPI(c.deviceID, gocv.VideoCaptureV4L2)
	if err != nil {
		c.machine.Force(feeder.StateError)
		return ferrors.Wrap(ferrors.KindDeviceNotFound, fmt.Sprintf("opening camera %d", c.deviceID), err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		c.machine.Force(feeder.StateError)
		return ferrors.New(ferrors.KindDeviceNotFound, fmt.Sprintf("camera %d not found or unavailable", c.deviceID))
	}

	webcam.Set(gocv.VideoCaptureFOURCC, fourccMJPEG)
	if width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	if fps > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	c.mu.Lock()
	c.webcam = webcam
	c.width = int(webcam.Get(gocv.VideoCaptureFrameWidth))
	c.height = int(webcam.Get(gocv.VideoCaptureFrameHeight))
	c.fps = int(webcam.Get(gocv.VideoCaptureFPS))
	c.mu.Unlock()

	warmup := gocv.NewMat()
	webcam.Read(&warmup)
	warmup.Close()

	return c.machine.Transition(feeder.StateConnected)
}

// Configure is valid only while Connected. It applies targetFPS to the
// device and stores format; exposureUS is not applied, and the grab
// loop does not consult the stored format: it always delivers 3-channel
// RGB frames.
func (c *Camera) Configure(exposureUS, targetFPS int, format feeder.PixelFormat) error {
	if c.machine.State() != feeder.StateConnected {
		return fmt.Errorf("camera: configure is only valid in Connected, currently %s", c.machine.State())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = format
	if targetFPS > 0 {
		c.webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))
		c.fps = targetFPS
	}
	return nil
}

// Start begins the grab worker on its own goroutine, transitioning
// Connected -> StartingGrab -> Grabbing.
func (c *Camera) Start(ctx context.Context) error {
	if err := c.machine.Transition(feeder.StateStartingGrab); err != nil {
		return err
	}

	grabCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopOnce = sync.Once{}

	if err := c.machine.Transition(feeder.StateGrabbing); err != nil {
		cancel()
		return err
	}

	c.workerWG.Add(1)
	go c.grabLoop(grabCtx)
	return nil
}

// grabLoop is the acquisition goroutine: retrieve, push to the
// mailbox (overwrite-on-full), repeat until ctx is done.
func (c *Camera) grabLoop(ctx context.Context) {
	defer c.workerWG.Done()

	mat := gocv.NewMat()
	defer mat.Close()

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ok := c.webcam.Read(&mat)
		if !ok || mat.Empty() {
			consecutiveFailures++
			if consecutiveFailures <= grabRetries {
				time.Sleep(grabBackoff)
				continue
			}
			c.lastError = ferrors.New(ferrors.KindGrabFailedFatal, "camera retrieval failed after retry budget")
			c.machine.Force(feeder.StateError)
			return
		}
		consecutiveFailures = 0

		rgb := gocv.NewMat()
		gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

		now := time.Now().UnixNano()
		c.fpsEst.Observe(now)
		c.box.Put(feeder.Frame{
			Pix:         rgb.ToBytes(),
			Width:       rgb.Cols(),
			Height:      rgb.Rows(),
			Channels:    rgb.Channels(),
			MonotonicNS: now,
		})
		rgb.Close()
	}
}

// Stop cancels the grab loop and waits up to stopWait for it to exit.
// A second call is a no-op and returns immediately.
func (c *Camera) Stop() error {
	var timedOut bool
	c.stopOnce.Do(func() {
		if err := c.machine.Transition(feeder.StateStoppingGrab); err != nil {
			return
		}
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.workerWG.Wait()
			close(done)
		}()

		select {
		case <-done:
			c.machine.Transition(feeder.StateConnected)
		case <-time.After(stopWait):
			timedOut = true
			c.machine.Force(feeder.StateError)
		}
	})
	if timedOut {
		return ferrors.New(ferrors.KindThreadInvariantBroken, "camera grab worker did not exit within the stop deadline")
	}
	return nil
}

// State returns the camera's current lifecycle state.
func (c *Camera) State() feeder.State { return c.machine.State() }

// FPS returns the sliding-window frame-rate estimate.
func (c *Camera) FPS() float64 { return c.fpsEst.FPS() }

// Mailbox returns the single-slot frame handoff the grab loop feeds.
func (c *Camera) Mailbox() *feeder.Mailbox { return c.box }

// Close disconnects and releases the underlying device handle.
func (c *Camera) Close() error {
	_ = c.Stop()
	if err := c.machine.Transition(feeder.StateDisconnecting); err != nil {
		c.machine.Force(feeder.StateDisconnecting)
	}
	c.box.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.webcam != nil {
		if err := c.webcam.Close(); err != nil {
			c.machine.Force(feeder.StateError)
			return fmt.Errorf("camera: closing device: %w", err)
		}
	}
	c.machine.Force(feeder.StateDisconnected)
	return nil
}

var _ feeder.Source = (*Camera)(nil)
