//go:build cgo

package preview

import (
	"runtime"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/feedercounter/vibcounter/internal/feeder"
)

func TestNewWindow(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping GUI test on macOS: NSWindow requires main thread")
	}
	w := NewWindow("Test Window")
	if w == nil {
		t.Fatal("NewWindow returned nil")
	}
	defer w.Close()
}

func TestWindow_ShowDrawsOverlayWithoutPanicking(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping GUI test on macOS: NSWindow requires main thread")
	}
	w := NewWindow("Test Window")
	defer w.Close()

	mat := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer mat.Close()

	overlay := Overlay{
		GateLineY: 400,
		Count:     3,
		Target:    100,
		Speed:     feeder.SpeedFull,
		State:     "Running",
	}
	w.Show(mat, overlay)
	time.Sleep(50 * time.Millisecond)
}

func TestWindow_CloseIsIdempotent(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping GUI test on macOS: NSWindow requires main thread")
	}
	w := NewWindow("Test Window")

	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWindow_ShowDropsFramesWhenBusy(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping GUI test on macOS: NSWindow requires main thread")
	}
	w := NewWindow("Test Window")
	defer w.Close()

	for i := 0; i < 5; i++ {
		mat := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		w.Show(mat, Overlay{})
		mat.Close()
		time.Sleep(10 * time.Millisecond)
	}
}
