// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"sync"
	"time"
)

// Watchdog flags the signal stale when it is not rearmed within a bound.
// At most one timer is pending at a time.
//
// The watchdog shares the lock of its owner: Rearm, Stop and Armed must be
// called with lock held, and onStale runs with lock held.
type Watchdog struct {
	clock   Clock
	after   time.Duration
	lock    sync.Locker
	onStale func()

	timer Timer
	gen   uint64
}

// NewWatchdog creates a disarmed watchdog.
func NewWatchdog(clock Clock, after time.Duration, lock sync.Locker, onStale func()) *Watchdog {
	return &Watchdog{clock: clock, after: after, lock: lock, onStale: onStale}
}

// Rearm cancels the pending timer, if any, and schedules a new one.
func (w *Watchdog) Rearm() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = w.clock.AfterFunc(w.after, func() { w.fire(gen) })
}

// Stop disarms the watchdog. Safe to call repeatedly.
func (w *Watchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
}

// Armed reports whether a timer is pending.
func (w *Watchdog) Armed() bool {
	return w.timer != nil
}

func (w *Watchdog) fire(gen uint64) {
	w.lock.Lock()
	defer w.lock.Unlock()

	// a timer that already fired can't be stopped; drop superseded ones
	if gen != w.gen {
		return
	}
	w.timer = nil
	w.onStale()
}
