package feeder

import (
	"context"
	"testing"
	"time"
)

func TestMailbox_PutThenTake(t *testing.T) {
	b := NewMailbox()
	b.Put(Frame{Width: 10, Height: 10, MonotonicNS: 1})

	f, ok := b.Take(context.Background())
	if !ok {
		t.Fatal("expected frame to be available")
	}
	if f.MonotonicNS != 1 {
		t.Errorf("expected MonotonicNS 1, got %d", f.MonotonicNS)
	}
}

func TestMailbox_OverwriteDropsPreviousFrame(t *testing.T) {
	b := NewMailbox()
	b.Put(Frame{MonotonicNS: 1})
	b.Put(Frame{MonotonicNS: 2})

	f, ok := b.Take(context.Background())
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.MonotonicNS != 2 {
		t.Errorf("expected latest-only overwrite to keep frame 2, got %d", f.MonotonicNS)
	}
}

func TestMailbox_TakeBlocksUntilPut(t *testing.T) {
	b := NewMailbox()
	result := make(chan Frame, 1)

	go func() {
		f, ok := b.Take(context.Background())
		if ok {
			result <- f
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Put(Frame{MonotonicNS: 42})

	select {
	case f := <-result:
		if f.MonotonicNS != 42 {
			t.Errorf("expected frame 42, got %d", f.MonotonicNS)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for blocked Take to return")
	}
}

func TestMailbox_TakeRespectsContextCancellation(t *testing.T) {
	b := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := b.Take(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected Take to return ok=false on cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation to unblock Take")
	}
}

func TestMailbox_CloseUnblocksTake(t *testing.T) {
	b := NewMailbox()
	done := make(chan bool, 1)
	go func() {
		_, ok := b.Take(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected Take to return ok=false after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Close to unblock Take")
	}
}
