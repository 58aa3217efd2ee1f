// Package clock provides cancel-by-rearm timer helpers for the cooperative
// scheduling model described in spec §5: any code path that arms a timer
// first cancels the previous arming, and timer callbacks run to completion
// without suspending.
package clock

import (
	"sync/atomic"
	"time"
)

// RearmTimer wraps a *time.Timer so callers never have to remember the
// stop-drain-reset dance by hand. It is not safe for concurrent use from
// more than one goroutine; the cooperative model in §5 guarantees a single
// logical thread of control per node.
type RearmTimer struct {
	timer   *time.Timer
	pending *atomic.Bool
}

// Arm cancels any previously armed timer and schedules fn to run after d.
// Arming with d <= 0 still schedules fn on the next tick, matching
// time.AfterFunc semantics.
func (t *RearmTimer) Arm(d time.Duration, fn func()) {
	t.Cancel()
	pending := new(atomic.Bool)
	pending.Store(true)
	t.pending = pending
	t.timer = time.AfterFunc(d, func() {
		pending.Store(false)
		fn()
	})
}

// Cancel stops the timer if armed. Safe to call when nothing is armed.
func (t *RearmTimer) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
		t.pending = nil
	}
}

// Armed reports whether a timer is currently pending.
func (t *RearmTimer) Armed() bool {
	return t.pending != nil && t.pending.Load()
}
