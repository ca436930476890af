package detector

import (
	"errors"

	"github.com/feedercounter/vibcounter/internal/feeder"
)

// ErrModelNotLoaded is returned by a deep-learning detector variant
// that has not had a model loaded yet.
var ErrModelNotLoaded = errors.New("detector: model not loaded")

// Null is a feeder.Detector that never finds anything. Useful for
// pipeline wiring tests and for running the counting stages against a
// synthetic detection stream without a camera or gocv dependency.
type Null struct{}

func (Null) Process(frame feeder.Frame, cfg *feeder.DetectionParams) ([]feeder.DetectedObject, feeder.ROI, error) {
	roi := feeder.ResolveROI(cfg, frame.Width, frame.Height)
	return nil, roi, nil
}
func (Null) Reset()      {}
func (Null) Close() error { return nil }

var _ feeder.Detector = Null{}

// YOLO is the deep-learning detector variant referenced by the
// classical/deep-learning tagged-variant design: same Detector
// contract, but no model-loading or inference is implemented here.
// Auto falls back to the classical detector until LoadModel succeeds.
type YOLO struct {
	modelLoaded bool
}

// LoadModel is a placeholder entry point; a real implementation would
// load weights and an input size here. Left unimplemented: the
// network's ROI-upscale factor and letterbox padding parameters are
// not specified anywhere in this package's inputs.
func (y *YOLO) LoadModel(path string) error {
	return ErrModelNotLoaded
}

func (y *YOLO) Process(frame feeder.Frame, cfg *feeder.DetectionParams) ([]feeder.DetectedObject, feeder.ROI, error) {
	roi := feeder.ResolveROI(cfg, frame.Width, frame.Height)
	if !y.modelLoaded {
		return nil, roi, ErrModelNotLoaded
	}
	return nil, roi, nil
}
func (y *YOLO) Reset()      { y.modelLoaded = false }
func (y *YOLO) Close() error { return nil }

var _ feeder.Detector = (*YOLO)(nil)

// Auto is a thin wrapper that delegates to the deep-learning detector
// once a model has been loaded, and to the classical detector
// otherwise. It adds no logic of its own beyond that selection.
type Auto struct {
	classical feeder.Detector
	deep      *YOLO
}

// NewAuto wraps classical (normally a *GoCV) with deep-learning
// fallback selection.
func NewAuto(classical feeder.Detector, deep *YOLO) *Auto {
	return &Auto{classical: classical, deep: deep}
}

func (a *Auto) Process(frame feeder.Frame, cfg *feeder.DetectionParams) ([]feeder.DetectedObject, feeder.ROI, error) {
	if a.deep != nil && a.deep.modelLoaded {
		return a.deep.Process(frame, cfg)
	}
	return a.classical.Process(frame, cfg)
}

func (a *Auto) Reset() {
	a.classical.Reset()
	if a.deep != nil {
		a.deep.Reset()
	}
}

func (a *Auto) Close() error {
	if a.deep != nil {
		a.deep.Close()
	}
	return a.classical.Close()
}

var _ feeder.Detector = (*Auto)(nil)
