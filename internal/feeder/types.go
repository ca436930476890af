// Package feeder defines the shared data model of the
// frame-to-count-to-actuation pipeline: Frame, ROI, DetectedObject, the
// Source state machine, and the single-slot frame mailbox that joins
// the acquisition and processing goroutines. Component packages
// (detector, tracker, gate, packaging, source, vibrator) import this
// package for the vocabulary they share.
package feeder

import (
	"context"
	"fmt"
)

// Frame is one captured image, owned by the processor for one tick.
type Frame struct {
	Pix         []byte // raw pixel buffer, row-major
	Width       int
	Height      int
	Channels    int // 1 = mono8, 3 = BGR/RGB
	MonotonicNS int64
}

// Empty reports whether the frame carries no usable pixel data.
func (f Frame) Empty() bool {
	return len(f.Pix) == 0 || f.Width <= 0 || f.Height <= 0
}

// SameDimensions reports whether f and other share width/height/channels.
func (f Frame) SameDimensions(other Frame) bool {
	return f.Width == other.Width && f.Height == other.Height && f.Channels == other.Channels
}

// Clone returns a deep copy of the frame's pixel buffer.
func (f Frame) Clone() Frame {
	cp := f
	cp.Pix = make([]byte, len(f.Pix))
	copy(cp.Pix, f.Pix)
	return cp
}

// ROI is the active detection sub-rectangle, recomputed every frame
// from config and frame size.
type ROI struct {
	X, Y, W, H int
	AutoWidth  bool
}

// Clamp bounds the ROI to the frame size so that 0 <= ROI.Y and
// ROI.Y+ROI.H <= frameH (and the equivalent on X/W). Returns the
// clamped ROI and whether clamping occurred.
func (r ROI) Clamp(frameW, frameH int) (ROI, bool) {
	clamped := r
	changed := false

	if clamped.X < 0 {
		clamped.X = 0
		changed = true
	}
	if clamped.Y < 0 {
		clamped.Y = 0
		changed = true
	}
	if clamped.W <= 0 || clamped.X+clamped.W > frameW {
		clamped.W = frameW - clamped.X
		changed = true
	}
	if clamped.H <= 0 || clamped.Y+clamped.H > frameH {
		clamped.H = frameH - clamped.Y
		changed = true
	}
	return clamped, changed
}

// Contains reports whether point (x, y) lies within the ROI.
func (r ROI) Contains(x, y float64) bool {
	return x >= float64(r.X) && x < float64(r.X+r.W) && y >= float64(r.Y) && y < float64(r.Y+r.H)
}

// DetectedObject is a blob that passed the detector's shape gates, in
// full-frame coordinates.
type DetectedObject struct {
	X, Y, W, H int
	CX, CY     float64
	Area       float64
}

// Point is a plain 2D point used by the tracker and gate counter.
type Point struct {
	X, Y float64
}

// PixelFormat names the pixel encoding a Source is configured for.
type PixelFormat int

const (
	PixelFormatMono8 PixelFormat = iota
	PixelFormatBGR8
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatMono8:
		return "mono8"
	case PixelFormatBGR8:
		return "bgr8"
	default:
		return "unknown"
	}
}

// Source is the common lifecycle shared by the camera-backed and
// file-backed frame producers: run a grab loop on its own goroutine,
// feed frames into a Mailbox, and expose state/FPS for the UI thread.
// Configuration is constructor-specific (device index vs. file path)
// and deliberately left out of this interface.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	State() State
	FPS() float64
	Mailbox() *Mailbox
	Close() error
}

// DeviceInfo describes one enumerable camera device.
type DeviceInfo struct {
	Index    int
	Model    string
	Serial   string
	Friendly string
}

// Speed is one of the five discrete vibrator speeds of the packaging
// schedule.
type Speed int

const (
	SpeedFull Speed = iota
	SpeedMedium
	SpeedSlow
	SpeedCreep
	SpeedStop
)

func (s Speed) String() string {
	switch s {
	case SpeedFull:
		return "FULL"
	case SpeedMedium:
		return "MEDIUM"
	case SpeedSlow:
		return "SLOW"
	case SpeedCreep:
		return "CREEP"
	case SpeedStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Percent returns the vibrator duty cycle configured for this speed.
func (s Speed) Percent(full, medium, slow, creep int) int {
	switch s {
	case SpeedFull:
		return full
	case SpeedMedium:
		return medium
	case SpeedSlow:
		return slow
	case SpeedCreep:
		return creep
	default:
		return 0
	}
}

// Detector turns a frame into a list of DetectedObject restricted to
// the ROI. Implementations are thread-confined to the processing
// goroutine. Two variants exist behind this one contract: a classical
// MOG2+edge pipeline, and an optional deep-learning plug-in.
type Detector interface {
	Process(frame Frame, cfg *DetectionParams) ([]DetectedObject, ROI, error)
	Reset()
	Close() error
}

// DetectionParams is the subset of config.DetectionConfig a Detector
// needs; declared here (rather than imported from package config) so
// package feeder has no dependency on package config.
type DetectionParams struct {
	MinArea, MaxArea                       int
	MinAspectRatio, MaxAspectRatio          float64
	MinExtent, MaxSolidity                  float64
	BGHistory, BGVarThreshold               int
	DetectShadows                           bool
	BGLearningRate                          float64
	CannyLow, CannyHigh                     int
	BinaryThreshold                         int
	GaussianBlurKernel                      int
	DilateKernelSize, DilateIterations      int
	CloseKernelSize                         int
	OpeningKernelSize, OpeningIterations     int
	Connectivity                            int
	RejectBorder                            bool
	ROIEnabled                              bool
	ROIX, ROIWidth, ROIHeight               int
	ROIPositionRatio                        float64
}

// ResolveROI computes the active detection sub-rectangle for a frame
// of the given size: a band positioned by ROIPositionRatio down the
// frame height, full width unless ROIWidth says otherwise.
func ResolveROI(p *DetectionParams, frameW, frameH int) ROI {
	if !p.ROIEnabled {
		return ROI{X: 0, Y: 0, W: frameW, H: frameH}
	}

	h := p.ROIHeight
	if h <= 0 || h > frameH {
		h = frameH
	}
	y := int(p.ROIPositionRatio * float64(frameH-h))
	x := p.ROIX
	w := p.ROIWidth
	if w <= 0 {
		w = frameW - x
	}

	roi := ROI{X: x, Y: y, W: w, H: h, AutoWidth: p.ROIWidth <= 0}
	clamped, _ := roi.Clamp(frameW, frameH)
	return clamped
}

// Vibrator is the actuator contract: start/stop/set-speed, backed by
// either a simulated or a real GPIO-driven implementation.
type Vibrator interface {
	Start() error
	Stop() error
	SetSpeedPercent(pct int) error
	Close() error
}

// errInvalidSpeed builds the error for an out-of-range speed percent.
// Nothing calls it; the vibrator implementations build their own
// range errors.
func errInvalidSpeed(pct int) error {
	return fmt.Errorf("speed percent %d out of range [0,100]", pct)
}
