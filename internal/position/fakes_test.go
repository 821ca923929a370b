// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type watchCallbacks struct {
	onReading func(RawReading)
	onError   func(ErrorCode)
	opts      WatchOptions
}

// fakeLocator records subscriptions; tests push readings through it.
type fakeLocator struct {
	mu        sync.Mutex
	supported bool
	nextID    WatchID
	watches   map[WatchID]watchCallbacks
	history   []watchCallbacks
	cleared   []WatchID
	requests  []watchCallbacks
}

func newFakeLocator() *fakeLocator {
	return &fakeLocator{supported: true, watches: map[WatchID]watchCallbacks{}}
}

func (l *fakeLocator) Supported() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supported
}

func (l *fakeLocator) Watch(onReading func(RawReading), onError func(ErrorCode), opts WatchOptions) WatchID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	cb := watchCallbacks{onReading: onReading, onError: onError, opts: opts}
	l.watches[l.nextID] = cb
	l.history = append(l.history, cb)
	return l.nextID
}

func (l *fakeLocator) ClearWatch(id WatchID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.watches, id)
	l.cleared = append(l.cleared, id)
}

func (l *fakeLocator) RequestOnce(onReading func(RawReading), onError func(ErrorCode), opts WatchOptions) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, watchCallbacks{onReading: onReading, onError: onError, opts: opts})
}

func (l *fakeLocator) active() []watchCallbacks {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []watchCallbacks
	for _, cb := range l.watches {
		out = append(out, cb)
	}
	return out
}

func (l *fakeLocator) emit(r RawReading) {
	for _, cb := range l.active() {
		cb.onReading(r)
	}
}

func (l *fakeLocator) fail(code ErrorCode) {
	for _, cb := range l.active() {
		cb.onError(code)
	}
}

func (l *fakeLocator) watchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

func (l *fakeLocator) activeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.watches)
}

func (l *fakeLocator) popRequest(t *testing.T) watchCallbacks {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.requests) == 0 {
		t.Fatal("no outstanding one-shot request")
	}
	req := l.requests[0]
	l.requests = l.requests[1:]
	return req
}

// permLocator adds permission introspection to fakeLocator.
type permLocator struct {
	*fakeLocator

	perm      PermissionState
	queryErr  error
	listeners []func(PermissionState)
	cancelled int

	// duringQuery runs inside QueryPermission, before it answers
	duringQuery func()
}

func newPermLocator(perm PermissionState) *permLocator {
	return &permLocator{fakeLocator: newFakeLocator(), perm: perm}
}

func (l *permLocator) QueryPermission(ctx context.Context) (PermissionState, error) {
	if l.duringQuery != nil {
		l.duringQuery()
	}
	if l.queryErr != nil {
		return "", l.queryErr
	}
	return l.perm, nil
}

func (l *permLocator) OnPermissionChange(fn func(PermissionState)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
	idx := len(l.listeners) - 1
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.listeners[idx] != nil {
			l.listeners[idx] = nil
			l.cancelled++
		}
	}
}

func (l *permLocator) change(p PermissionState) {
	l.mu.Lock()
	fns := append([]func(PermissionState){}, l.listeners...)
	l.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(p)
		}
	}
}

func newTestController(t *testing.T, loc Locator) (*Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	c, err := NewController(loc, DefaultConfig(),
		WithClock(clock),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(c.Close)
	return c, clock
}

func reading(lat, lon, accuracy float64) RawReading {
	return RawReading{Latitude: lat, Longitude: lon, AccuracyMeters: accuracy, Timestamp: time.Unix(1700000000, 0)}
}

func withSpeed(r RawReading, mps float64) RawReading {
	r.Speed = &mps
	return r
}
