// Package smoothing provides a Kalman filter used to stabilize a
// track's centroid, opted into per-run via tracking.smooth_positions.
package smoothing

import "sync"

// Kalman implements a simple 1D Kalman filter.
type Kalman struct {
	mu sync.Mutex

	x float64 // state estimate
	p float64 // estimate uncertainty
	q float64 // process noise
	r float64 // measurement noise

	initialized bool
}

// NewKalman creates a filter whose noise model comes from the domain's
// own tuning parameters rather than an arbitrary smoothing factor.
// measurementNoiseStdDev is the pixel tolerance within which two
// measurements are considered the same physical position
// (tracking.crossing_tolerance_x/y): a wider tolerance means a single
// measurement is trusted less, so r grows with its square.
// historyLength is the number of frames the tracker already averages
// over when estimating velocity (tracking.history_length): the longer
// that window, the more the velocity estimate already damps
// frame-to-frame drift on its own, so less process noise needs
// injecting per frame, and q shrinks as 1/historyLength. q is kept in
// absolute pixel^2 units rather than scaled by r, so a wider position
// tolerance alone doesn't also widen how much the state is allowed to
// drift between measurements.
func NewKalman(measurementNoiseStdDev float64, historyLength int) *Kalman {
	if historyLength < 1 {
		historyLength = 1
	}
	r := measurementNoiseStdDev * measurementNoiseStdDev
	q := 1.0 / float64(historyLength)

	return &Kalman{
		p: r,
		q: q,
		r: r,
	}
}

// Update processes a new measurement and returns the filtered value.
func (k *Kalman) Update(measurement float64) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.initialized {
		k.x = measurement
		k.initialized = true
		return measurement
	}

	pPred := k.p + k.q
	gain := pPred / (pPred + k.r)
	k.x = k.x + gain*(measurement-k.x)
	k.p = (1 - gain) * pPred

	return k.x
}

// Reset clears the filter state.
func (k *Kalman) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.x = 0
	k.p = k.r
	k.initialized = false
}

// State returns the current state estimate.
func (k *Kalman) State() float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.x
}

// Point2D is a 2D measurement smoothed independently per axis.
type Point2D struct {
	X, Y float64
}

// Kalman2D applies independent Kalman filtering to each axis of a 2D point.
type Kalman2D struct {
	x, y *Kalman
}

// NewKalman2D creates a 2D filter, deriving each axis's noise model
// from its own positional tolerance (tracking.crossing_tolerance_x/y
// are rarely equal, since the gate line only constrains Y travel
// tightly) and the shared velocity-averaging window.
func NewKalman2D(toleranceXStdDev, toleranceYStdDev float64, historyLength int) *Kalman2D {
	return &Kalman2D{
		x: NewKalman(toleranceXStdDev, historyLength),
		y: NewKalman(toleranceYStdDev, historyLength),
	}
}

// Update processes a new 2D measurement and returns the filtered point.
func (k *Kalman2D) Update(p Point2D) Point2D {
	return Point2D{X: k.x.Update(p.X), Y: k.y.Update(p.Y)}
}

// Reset clears both axis filters.
func (k *Kalman2D) Reset() {
	k.x.Reset()
	k.y.Reset()
}
