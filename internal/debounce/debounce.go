// Package debounce coalesces bursts of trigger calls into a single
// trailing-edge execution.
package debounce

import (
	"sync"
	"time"
)

// Debouncer holds one pending execution slot. Every Trigger cancels and
// replaces whatever is pending, so only the last caller's function runs,
// one window after the burst goes quiet. The slot is deliberately a single
// shared one: callers that multiplex triggers from many sources through one
// Debouncer get cross-source cancellation, not one slot per source.
type Debouncer struct {
	window time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// New creates a debouncer with the given quiet window.
func New(window time.Duration) *Debouncer {
	if window <= 0 {
		window = time.Millisecond
	}
	return &Debouncer{window: window}
}

// Trigger schedules fn to run after the quiet window, cancelling any
// previously pending function and discarding its arguments entirely.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		stale := gen != d.gen
		d.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

// Stop cancels any pending execution, for shutdown.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
