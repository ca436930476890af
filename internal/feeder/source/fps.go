// Package source provides the two frame-producing Source
// implementations (camera-backed and file-backed) sharing one state
// machine and mailbox discipline.
package source

import "sync"

// fpsWindowSize is the sliding window of frame timestamps used to
// estimate throughput: fps = (n-1) / (t_last - t_first).
const fpsWindowSize = 60

// fpsEstimator is a small ring buffer of the last fpsWindowSize frame
// timestamps (monotonic nanoseconds), shared by both Source variants.
type fpsEstimator struct {
	mu    sync.Mutex
	times [fpsWindowSize]int64
	count int
	next  int
}

func newFPSEstimator() *fpsEstimator {
	return &fpsEstimator{}
}

// Observe records a new frame timestamp.
func (f *fpsEstimator) Observe(monotonicNS int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times[f.next] = monotonicNS
	f.next = (f.next + 1) % fpsWindowSize
	if f.count < fpsWindowSize {
		f.count++
	}
}

// FPS returns the current estimate, or 0 if fewer than two samples
// have been observed.
func (f *fpsEstimator) FPS() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count < 2 {
		return 0
	}

	// oldest sample is the one just after `next` once the ring has
	// wrapped; before that, it's simply index 0.
	oldestIdx := 0
	if f.count == fpsWindowSize {
		oldestIdx = f.next
	}
	newestIdx := (f.next - 1 + fpsWindowSize) % fpsWindowSize

	tFirst := f.times[oldestIdx]
	tLast := f.times[newestIdx]
	if tLast <= tFirst {
		return 0
	}

	elapsedSeconds := float64(tLast-tFirst) / 1e9
	return float64(f.count-1) / elapsedSeconds
}

// Reset clears all recorded samples.
func (f *fpsEstimator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = 0
	f.next = 0
}
