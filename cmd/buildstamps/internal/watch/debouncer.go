// Package watch reports source files whose stamps go stale as they change.
package watch

import (
	"sync"
	"time"
)

// MaxPending is the maximum number of paths that can be pending. Reaching
// it triggers an immediate flush.
const MaxPending = 1000

// Debouncer coalesces rapid file change events into batches. It groups
// events within a time window so a burst of saves (IDE autosave, formatter
// runs) is checked once.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{} // set of pending paths
	timer   *time.Timer
	window  time.Duration
	onFlush func(paths []string)
	stopped bool

	// inflight counts callbacks running outside mu. Add is only called
	// under mu while !stopped, so Stop can Wait on it.
	inflight sync.WaitGroup
}

// NewDebouncer creates a debouncer with the given window duration.
// The onFlush callback is called with the changed paths after the window
// expires with no new events.
func NewDebouncer(window time.Duration, onFlush func(paths []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a change to path.
// Multiple calls with the same path within the window are coalesced.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.pending[path] = struct{}{}

	if len(d.pending) >= MaxPending {
		d.stopTimerLocked()
		paths := d.takeLocked()
		d.inflight.Add(1)
		d.mu.Unlock()
		d.emit(paths)
		return
	}

	// timer.Stop may lose the race with an already fired timer; flush then
	// finds an empty or newer pending set, which is fine.
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.window, d.flush)
	d.mu.Unlock()
}

// flush is called when the timer expires.
func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	paths := d.takeLocked()
	d.inflight.Add(1)
	d.mu.Unlock()
	d.emit(paths)
}

// FlushNow immediately flushes any pending paths without waiting for the
// timer.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	d.stopTimerLocked()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	paths := d.takeLocked()
	d.inflight.Add(1)
	d.mu.Unlock()
	d.emit(paths)
}

// Stop stops the debouncer. Any pending paths are flushed, and Stop returns
// only after every callback already started has finished. It must not be
// called from the callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.stopTimerLocked()
	paths := d.takeLocked()
	d.mu.Unlock()
	if len(paths) > 0 && d.onFlush != nil {
		d.onFlush(paths)
	}
	d.inflight.Wait()
}

// PendingCount returns the number of paths waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// takeLocked empties the pending set and returns its paths.
// Caller must hold d.mu.
func (d *Debouncer) takeLocked() []string {
	if len(d.pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(d.pending))
	for path := range d.pending {
		paths = append(paths, path)
	}
	d.pending = make(map[string]struct{})
	return paths
}

// emit runs the callback outside the lock and releases the inflight slot
// taken by its caller.
func (d *Debouncer) emit(paths []string) {
	defer d.inflight.Done()
	if len(paths) > 0 && d.onFlush != nil {
		d.onFlush(paths)
	}
}
