//go:build cgo

package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/feedercounter/vibcounter/internal/feeder"
)

func TestRecorder_WriteAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	r, err := Open(path, 64, 48, 30)
	if err != nil {
		t.Skipf("skipping: no video writer backend available: %v", err)
	}

	frame := feeder.Frame{
		Pix:      make([]byte, 64*48*3),
		Width:    64,
		Height:   48,
		Channels: 3,
	}
	if err := r.Write(frame); err != nil {
		t.Errorf("unexpected error writing frame: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("unexpected error closing recorder: %v", err)
	}

	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("expected a non-empty output file, stat: %v, err: %v", info, err)
	}
}

func TestRecorder_WriteAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	r, err := Open(path, 64, 48, 30)
	if err != nil {
		t.Skipf("skipping: no video writer backend available: %v", err)
	}
	r.Close()

	frame := feeder.Frame{Pix: make([]byte, 64*48*3), Width: 64, Height: 48, Channels: 3}
	if err := r.Write(frame); err == nil {
		t.Error("expected write after close to fail")
	}
}
