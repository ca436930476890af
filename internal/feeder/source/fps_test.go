package source

import "testing"

func TestFPSEstimator_EmptyIsZero(t *testing.T) {
	f := newFPSEstimator()
	if got := f.FPS(); got != 0 {
		t.Errorf("expected 0 for an empty estimator, got %v", got)
	}
}

func TestFPSEstimator_SingleSampleIsZero(t *testing.T) {
	f := newFPSEstimator()
	f.Observe(0)
	if got := f.FPS(); got != 0 {
		t.Errorf("expected 0 for a single sample, got %v", got)
	}
}

func TestFPSEstimator_EstimatesSteadyRate(t *testing.T) {
	f := newFPSEstimator()
	const intervalNS = int64(1e9 / 30) // 30 fps
	for i := 0; i < 10; i++ {
		f.Observe(int64(i) * intervalNS)
	}
	got := f.FPS()
	if got < 29 || got > 31 {
		t.Errorf("expected ~30 fps, got %v", got)
	}
}

func TestFPSEstimator_WindowSlidesPastCapacity(t *testing.T) {
	f := newFPSEstimator()
	const intervalNS = int64(1e9 / 100) // 100 fps
	for i := 0; i < fpsWindowSize*2; i++ {
		f.Observe(int64(i) * intervalNS)
	}
	got := f.FPS()
	if got < 95 || got > 105 {
		t.Errorf("expected ~100 fps after wrapping the ring, got %v", got)
	}
}

func TestFPSEstimator_ResetClearsSamples(t *testing.T) {
	f := newFPSEstimator()
	f.Observe(0)
	f.Observe(1e9 / 30)
	f.Reset()
	if got := f.FPS(); got != 0 {
		t.Errorf("expected 0 after reset, got %v", got)
	}
}
