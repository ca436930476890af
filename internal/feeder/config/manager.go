package config

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the live configuration snapshot and the optional
// on-disk watcher that hot-reloads it. Readers call Snapshot and treat
// the result as immutable; writers call Set or rely on Watch picking
// up an external file edit. A swap never mutates a snapshot already
// handed to a reader, so a tick started against an old snapshot always
// finishes consistently even if a reload lands mid-tick.
type Manager struct {
	mu      sync.Mutex // serializes writers; readers never block on it
	current atomic.Pointer[Config]
	path    string
}

// NewManager loads path (or defaults, if path is empty) and returns a
// ready Manager.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.current.Store(cfg)
	return m, nil
}

// Snapshot returns the current configuration. The returned pointer must
// not be mutated by the caller.
func (m *Manager) Snapshot() *Config {
	return m.current.Load()
}

// Set applies mutate to a clone of the current config, validates it,
// and swaps it in only if valid. This is the "mutator interface" design
// note's resolution for UI-originated config writes: the UI never holds
// a reference into the live struct, only a write request.
func (m *Manager) Set(mutate func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.Load().Clone()
	mutate(next)
	if err := next.Validate(); err != nil {
		return err
	}
	m.current.Store(next)
	return nil
}

// Reload re-reads the config file from disk, validates it, and swaps it
// in. A parse or validation failure leaves the previous live config in
// place and is returned to the caller for logging.
func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Load(m.path)
	if err != nil {
		return err
	}
	m.current.Store(next)
	return nil
}

// Watch starts an fsnotify-driven hot-reload loop on the config file,
// debounced against rapid successive writes, in the same shape as the
// gocvkit reference app's watchConfig: load, validate, swap, and on
// failure log-and-keep-the-old-config rather than crash. Watch blocks
// until ctx is done; callers run it in its own goroutine.
func (m *Manager) Watch(ctx context.Context) {
	if m.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("config: failed to create watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(m.path); err != nil {
		log.Printf("config: failed to watch %s: %v", m.path, err)
		return
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if time.Since(last) < 200*time.Millisecond {
				continue
			}
			last = time.Now()

			if err := m.Reload(); err != nil {
				log.Printf("config: reload failed, keeping previous config: %v", err)
				continue
			}
			log.Printf("config: hot-reloaded from %s", m.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}
