// Package events provides the thread-safe publish/subscribe channel
// that carries every feeder event (frame/fps/state/error from Source,
// crossing/speed/completion from the counting pipeline) to the UI
// thread. The UI thread only ever reads events off this bus; it never
// touches Detector/Tracker state directly.
package events

import (
	"sync"
	"time"
)

// Kind identifies the shape of an Event's Data field.
type Kind int

const (
	KindFrameCaptured Kind = iota
	KindFPS
	KindStateChanged
	KindSourceError
	KindObjectsCrossedGate
	KindVibratorSpeedChanged
	KindPackagingCompleted
	KindVibratorError
	KindPlaybackFinished
)

func (k Kind) String() string {
	switch k {
	case KindFrameCaptured:
		return "FrameCaptured"
	case KindFPS:
		return "FPS"
	case KindStateChanged:
		return "StateChanged"
	case KindSourceError:
		return "SourceError"
	case KindObjectsCrossedGate:
		return "ObjectsCrossedGate"
	case KindVibratorSpeedChanged:
		return "VibratorSpeedChanged"
	case KindPackagingCompleted:
		return "PackagingCompleted"
	case KindVibratorError:
		return "VibratorError"
	case KindPlaybackFinished:
		return "PlaybackFinished"
	default:
		return "Unknown"
	}
}

// Event is a single notification on the bus. Data's concrete type
// depends on Kind (e.g. an int count for KindObjectsCrossedGate, a
// Speed for KindVibratorSpeedChanged); subscribers type-assert it.
type Event struct {
	Kind Kind
	At   time.Time
	Data any
}

// Bus fans a single stream of events out to any number of subscribers
// using buffered per-subscriber channels and non-blocking sends that
// drop a notification rather than stall the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	closed      bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives every future Publish call.
// The caller must drain it; a slow subscriber only drops events, it
// never blocks the publisher.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 32)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish broadcasts e to every current subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Drop if the subscriber is slow; the bus never blocks the
			// processing thread.
		}
	}
}

// Close closes every subscriber channel. Publish becomes a no-op after
// Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
