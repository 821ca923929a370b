// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"sync"
	"testing"
	"time"
)

func TestWatchdog_FiresAfterSilence(t *testing.T) {
	clock := &fakeClock{}
	var mu sync.Mutex
	fired := 0
	w := NewWatchdog(clock, 30*time.Second, &mu, func() { fired++ })

	w.Rearm()
	clock.Advance(29 * time.Second)
	if fired != 0 {
		t.Fatalf("fired early")
	}
	clock.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if w.Armed() {
		t.Error("watchdog still armed after firing")
	}
}

func TestWatchdog_RearmKeepsOneTimer(t *testing.T) {
	clock := &fakeClock{}
	var mu sync.Mutex
	fired := 0
	w := NewWatchdog(clock, 30*time.Second, &mu, func() { fired++ })

	for i := 0; i < 5; i++ {
		w.Rearm()
		clock.Advance(20 * time.Second)
	}
	if fired != 0 {
		t.Fatalf("fired = %d while being rearmed", fired)
	}
	if clock.Pending() != 1 {
		t.Errorf("pending timers = %d, want 1", clock.Pending())
	}

	clock.Advance(10 * time.Second)
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestWatchdog_StopIsIdempotent(t *testing.T) {
	clock := &fakeClock{}
	var mu sync.Mutex
	fired := 0
	w := NewWatchdog(clock, time.Second, &mu, func() { fired++ })

	w.Stop()
	w.Rearm()
	w.Stop()
	w.Stop()
	clock.Advance(time.Minute)
	if fired != 0 {
		t.Errorf("fired = %d after Stop", fired)
	}
	if clock.Pending() != 0 {
		t.Errorf("pending timers = %d after Stop", clock.Pending())
	}
}

func TestWatchdog_DropsSupersededTimer(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	clock := &manualClock{}
	w := NewWatchdog(clock, time.Second, &mu, func() { fired++ })

	w.Rearm()
	old := clock.last
	w.Rearm()

	// the old timer's callback was already running when it got superseded
	old()
	if fired != 0 {
		t.Errorf("superseded timer fired the callback")
	}
	clock.last()
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

// manualClock hands out callbacks that ignore Stop, like a timer that has
// already expired.
type manualClock struct {
	last func()
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return false }

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.last = f
	return noopTimer{}
}
