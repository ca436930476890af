//go:build cgo

package source

import (
	"context"
	"testing"
	"time"

	"github.com/feedercounter/vibcounter/internal/feeder"
)

func TestCamera_OpenAndReadWithoutHardwareSkips(t *testing.T) {
	cam := NewCamera(0)
	if err := cam.Open(640, 480, 30); err != nil {
		t.Skipf("skipping: no camera available: %v", err)
	}
	defer cam.Close()

	if cam.State() != feeder.StateConnected {
		t.Errorf("expected Connected after Open, got %s", cam.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := cam.Start(ctx); err != nil {
		t.Fatalf("unexpected error starting grab loop: %v", err)
	}

	frame, ok := cam.Mailbox().Take(context.Background())
	if !ok || frame.Empty() {
		t.Error("expected a non-empty frame from the grab loop")
	}
}

func TestCamera_StopIsIdempotentAndBounded(t *testing.T) {
	cam := NewCamera(0)
	if err := cam.Open(640, 480, 30); err != nil {
		t.Skipf("skipping: no camera available: %v", err)
	}

	ctx := context.Background()
	if err := cam.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	if err := cam.Stop(); err != nil {
		t.Errorf("unexpected error on first Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > stopWait+time.Second {
		t.Errorf("Stop exceeded its bound: %v", elapsed)
	}

	if err := cam.Stop(); err != nil {
		t.Errorf("expected second Stop to be a no-op, got %v", err)
	}
}

func TestCamera_InvalidDeviceReturnsError(t *testing.T) {
	cam := NewCamera(999)
	if err := cam.Open(640, 480, 30); err == nil {
		cam.Close()
		t.Skip("device 999 unexpectedly exists")
	}
	if cam.State() != feeder.StateError {
		t.Errorf("expected Error state after a failed open, got %s", cam.State())
	}
}
