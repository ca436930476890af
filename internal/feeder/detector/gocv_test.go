//go:build cgo

package detector

import (
	"testing"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/config"
)

func testParams() *feeder.DetectionParams {
	d := config.Default().Detection
	return d.ToParams()
}

func solidFrame(w, h int, value byte) feeder.Frame {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = value
	}
	return feeder.Frame{Pix: pix, Width: w, Height: h, Channels: 3}
}

func TestGoCV_EmptyFrameReturnsNoObjects(t *testing.T) {
	g := NewGoCV()
	defer g.Close()

	objs, _, err := g.Process(feeder.Frame{}, testParams())
	if err != nil {
		t.Fatalf("Process on empty frame: %v", err)
	}
	if len(objs) != 0 {
		t.Errorf("expected no objects from an empty frame, got %d", len(objs))
	}
}

func TestGoCV_UniformFrameYieldsNoDetections(t *testing.T) {
	g := NewGoCV()
	defer g.Close()

	params := testParams()
	frame := solidFrame(320, 240, 128)
	for i := 0; i < 5; i++ {
		if _, _, err := g.Process(frame, params); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	objs, _, err := g.Process(frame, params)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(objs) != 0 {
		t.Errorf("expected a flat uniform frame to produce no detections after warm-up, got %d", len(objs))
	}
}

func TestGoCV_DimensionChangeResetsBackgroundModel(t *testing.T) {
	g := NewGoCV()
	defer g.Close()

	params := testParams()
	small := solidFrame(160, 120, 100)
	if _, _, err := g.Process(small, params); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !g.mog2Ready {
		t.Fatal("expected background model to be initialized after first frame")
	}

	large := solidFrame(320, 240, 100)
	if _, _, err := g.Process(large, params); err != nil {
		t.Fatalf("Process on resized frame: %v", err)
	}
	if g.lastWidth != 320 || g.lastHeight != 240 {
		t.Errorf("expected tracked dimensions to follow the new frame, got %dx%d", g.lastWidth, g.lastHeight)
	}
}

func TestGoCV_DebugMatsArePublishedAfterProcess(t *testing.T) {
	g := NewGoCV()
	defer g.Close()

	params := testParams()
	frame := solidFrame(160, 120, 100)
	if _, _, err := g.Process(frame, params); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if g.DebugForeground() == nil {
		t.Error("expected a foreground debug mat after Process")
	}
	if g.DebugEdges() == nil {
		t.Error("expected an edge debug mat after Process")
	}
	if g.DebugCombined() == nil {
		t.Error("expected a combined debug mat after Process")
	}
}

func TestGoCV_CloseIsIdempotent(t *testing.T) {
	g := NewGoCV()
	frame := solidFrame(160, 120, 100)
	if _, _, err := g.Process(frame, testParams()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
