//go:build cgo

// Package recorder writes the raw or annotated frame stream to an
// MJPEG/AVI container. Writes are synchronous and serialize behind one
// mutex — no drop-on-backpressure, unlike the frame mailbox.
package recorder

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/feedercounter/vibcounter/internal/feeder"
)

// Recorder serializes frame writes to a video file. Safe for
// concurrent use, though in practice only the processing goroutine
// calls Write.
type Recorder struct {
	mu     sync.Mutex
	writer *gocv.VideoWriter
	opened bool
}

// Open creates a recorder writing codec-encoded frames of the given
// size and frame rate to path.
func Open(path string, width, height int, fps float64) (*Recorder, error) {
	writer, err := gocv.VideoWriterFile(path, "MJPG", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("recorder: opening %q: %w", path, err)
	}
	return &Recorder{writer: writer, opened: true}, nil
}

// Write encodes frame and appends it to the container. Blocks until
// the write completes; never drops a frame.
func (r *Recorder) Write(frame feeder.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.opened {
		return fmt.Errorf("recorder: write on closed recorder")
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return fmt.Errorf("recorder: converting frame: %w", err)
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBToBGR)

	if err := r.writer.Write(bgr); err != nil {
		return fmt.Errorf("recorder: writing frame: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying container.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return nil
	}
	r.opened = false
	return r.writer.Close()
}
