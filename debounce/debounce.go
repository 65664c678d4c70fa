// Package debounce provides a keyed scheduled-callback utility: each call
// for a key restarts the key's timer, so only the last callback in a burst
// runs once the window elapses.
package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls per key. The zero value is not
// usable; construct with New.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New creates a Debouncer with the given window. A non-positive window
// disables debouncing: callbacks run synchronously on Call.
func New(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		timers: map[string]*time.Timer{},
	}
}

// Call schedules fn to run after the window elapses, cancelling any
// callback previously scheduled for the same key.
func (d *Debouncer) Call(key string, fn func()) {
	if d.window <= 0 {
		fn()
		return
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if prev, ok := d.timers[key]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		// A newer Call for this key replaced us between firing and locking.
		if d.timers[key] != timer || d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = timer
	d.mu.Unlock()
}

// Cancel drops the pending callback for a key, if any. It reports whether
// one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	timer, ok := d.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(d.timers, key)
	return true
}

// Stop cancels every pending callback and rejects further scheduling.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
