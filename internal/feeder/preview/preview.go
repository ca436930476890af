//go:build cgo

// Package preview shows a debug window with the annotated frame:
// bounding boxes around tracked parts, the gate line, and the running
// count/speed/state. OpenCV UI calls are confined to one OS thread,
// since HighGUI's window functions are only safe to call from the
// thread that created the window.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"

	"gocv.io/x/gocv"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/tracker"
)

// Overlay carries the per-tick state the window draws on top of the
// raw frame.
type Overlay struct {
	Tracks    []*tracker.Track
	GateLineY int
	Count     int
	Target    int
	Speed     feeder.Speed
	State     string
}

// Window provides a debug preview window for the annotated frame.
// OpenCV UI functions must be called from the thread that created the
// window on Linux/X11, so Window runs its own loop on a dedicated,
// locked goroutine.
type Window struct {
	window   *gocv.Window
	frameCh  chan frameAndOverlay
	closeCh  chan struct{}
	doneCh   chan struct{}
	once     sync.Once
	initDone chan struct{}
}

type frameAndOverlay struct {
	mat     gocv.Mat
	overlay Overlay
}

// NewWindow creates a preview window with the given title. Must be
// called once per window.
func NewWindow(title string) *Window {
	w := &Window{
		frameCh:  make(chan frameAndOverlay, 1),
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
		initDone: make(chan struct{}),
	}
	go w.loop(title)
	<-w.initDone
	return w
}

func (w *Window) loop(title string) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.window = gocv.NewWindow(title)
	close(w.initDone)

	for {
		select {
		case fo := <-w.frameCh:
			drawOverlay(&fo.mat, fo.overlay)
			w.window.IMShow(fo.mat)
			w.window.WaitKey(1)
			fo.mat.Close()
		case <-w.closeCh:
			if w.window != nil {
				w.window.Close()
			}
			close(w.doneCh)
			return
		}
	}
}

// Show displays frame with overlay drawn on top. frame is cloned
// internally; the caller keeps ownership of the original. A frame
// arriving while the window is busy with the previous one is dropped,
// never queued.
func (w *Window) Show(frame gocv.Mat, overlay Overlay) {
	if frame.Empty() {
		return
	}
	cloned := frame.Clone()
	select {
	case w.frameCh <- frameAndOverlay{mat: cloned, overlay: overlay}:
	default:
		cloned.Close()
	}
}

// Close closes the preview window and releases its resources. Safe to
// call more than once.
func (w *Window) Close() error {
	w.once.Do(func() {
		close(w.closeCh)
		<-w.doneCh
	})
	return nil
}

// drawOverlay paints tracked bounding boxes, the gate line, and the
// status line onto frame in place.
func drawOverlay(frame *gocv.Mat, o Overlay) {
	green := color.RGBA{G: 255, A: 255}
	red := color.RGBA{R: 255, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	if o.GateLineY > 0 {
		gocv.Line(frame, image.Pt(0, o.GateLineY), image.Pt(frame.Cols(), o.GateLineY), red, 2)
	}

	for _, t := range o.Tracks {
		rect := image.Rect(t.X, t.Y, t.X+t.W, t.Y+t.H)
		boxColor := green
		if t.Counted {
			boxColor = white
		}
		gocv.Rectangle(frame, rect, boxColor, 2)
		gocv.PutText(frame, fmt.Sprintf("#%d", t.ID), image.Pt(t.X, t.Y-4),
			gocv.FontHersheyPlain, 1.0, boxColor, 1)
	}

	status := fmt.Sprintf("count %d/%d  speed %s  state %s", o.Count, o.Target, o.Speed, o.State)
	gocv.PutText(frame, status, image.Pt(10, 24), gocv.FontHersheyPlain, 1.2, white, 1)
}
