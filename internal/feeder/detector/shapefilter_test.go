package detector

import (
	"testing"

	"github.com/feedercounter/vibcounter/internal/feeder/config"
)

func testDetectionConfig() config.DetectionConfig {
	return config.Default().Detection
}

func TestPassesShapeFilter_RejectsAreaOutOfRange(t *testing.T) {
	cfg := testDetectionConfig()
	if passesShapeFilter(float64(cfg.MinArea-1), 10, 10, 1.0, cfg) {
		t.Error("expected area below min_area to be rejected")
	}
	if passesShapeFilter(float64(cfg.MaxArea+1), 10, 10, 1.0, cfg) {
		t.Error("expected area above max_area to be rejected")
	}
}

func TestPassesShapeFilter_RejectsBadAspectRatio(t *testing.T) {
	cfg := testDetectionConfig()
	cfg.MinAspectRatio = 0.5
	cfg.MaxAspectRatio = 2.0
	if passesShapeFilter(100, 100, 5, 1.0, cfg) { // aspect 20, way over max
		t.Error("expected an extreme aspect ratio to be rejected")
	}
}

func TestPassesShapeFilter_RejectsLowExtent(t *testing.T) {
	cfg := testDetectionConfig()
	cfg.MinExtent = 0.9
	// bounding box is 10x10=100, area only 20: extent 0.2
	if passesShapeFilter(20, 10, 10, 1.0, cfg) {
		t.Error("expected low-extent blob to be rejected")
	}
}

func TestPassesShapeFilter_RejectsHighSolidity(t *testing.T) {
	cfg := testDetectionConfig()
	cfg.MinArea, cfg.MaxArea = 1, 1000
	cfg.MinAspectRatio, cfg.MaxAspectRatio = 0.2, 5
	cfg.MinExtent = 0.3
	cfg.MaxSolidity = 0.8
	if passesShapeFilter(90, 10, 10, 0.95, cfg) {
		t.Error("expected a near-solid blob above max_solidity to be rejected")
	}
}

func TestPassesShapeFilter_ZeroSolidityIsTreatedAsUncomputed(t *testing.T) {
	cfg := testDetectionConfig()
	cfg.MinArea, cfg.MaxArea = 1, 1000
	cfg.MinAspectRatio, cfg.MaxAspectRatio = 0.2, 5
	cfg.MinExtent = 0.3
	cfg.MaxSolidity = 0.8
	if !passesShapeFilter(90, 10, 10, 0, cfg) {
		t.Error("expected solidity=0 (uncomputed) to skip the solidity gate")
	}
}

func TestPassesShapeFilter_AcceptsWellFormedBlob(t *testing.T) {
	cfg := testDetectionConfig()
	cfg.MinArea = 1
	cfg.MaxArea = 1000
	cfg.MinAspectRatio = 0.2
	cfg.MaxAspectRatio = 5
	cfg.MinExtent = 0.3
	cfg.MaxSolidity = 1.0
	if !passesShapeFilter(90, 10, 10, 0.9, cfg) {
		t.Error("expected a square, dense blob to be accepted")
	}
}

func TestTouchesBorder(t *testing.T) {
	cases := []struct {
		x, y, w, h, roiW, roiH int
		want                   bool
	}{
		{0, 5, 10, 10, 100, 100, true},
		{5, 0, 10, 10, 100, 100, true},
		{90, 5, 10, 10, 100, 100, true},
		{5, 90, 10, 10, 100, 100, true},
		{10, 10, 10, 10, 100, 100, false},
	}
	for _, c := range cases {
		if got := touchesBorder(c.x, c.y, c.w, c.h, c.roiW, c.roiH); got != c.want {
			t.Errorf("touchesBorder(%d,%d,%d,%d,%d,%d) = %v, want %v",
				c.x, c.y, c.w, c.h, c.roiW, c.roiH, got, c.want)
		}
	}
}
