//go:build cgo

package source

import (
	"context"
	"testing"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/events"
)

func TestFile_OpenNonExistentPathFails(t *testing.T) {
	bus := events.NewBus()
	f := NewFile("/nonexistent/path/does-not-exist.avi", 30, bus)
	if err := f.Open(); err == nil {
		t.Error("expected an error opening a nonexistent file")
	}
	if f.State() != feeder.StateError {
		t.Errorf("expected Error state, got %s", f.State())
	}
}

func TestFile_PauseRepublishesLastFrame(t *testing.T) {
	bus := events.NewBus()
	f := NewFile("testdata/sample.avi", 60, bus)
	if err := f.Open(); err != nil {
		t.Skipf("skipping: no sample video available: %v", err)
	}
	defer f.Close()

	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, ok := f.Mailbox().Take(context.Background())
	if !ok {
		t.Fatal("expected a first frame")
	}

	f.Pause()
	second, ok := f.Mailbox().Take(context.Background())
	if !ok {
		t.Fatal("expected the paused loop to keep republishing the last frame")
	}
	if second.MonotonicNS == first.MonotonicNS {
		// acceptable: the mailbox may legitimately deliver the same
		// timestamped frame again while paused.
		return
	}
}
