// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/relabs-tech/geofix/internal/geo"
)

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the clock used by the staleness watchdog.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller owns the position signal: it manages the platform
// subscription and permission state, runs every reading through the gate
// pipeline and exposes the result as State.
//
// All callbacks (platform readings and errors, permission changes, the
// staleness timer, recalibration results) are serialised by one mutex, so
// each runs to completion before the next one starts.
type Controller struct {
	cfg    Config
	loc    Locator
	clock  Clock
	logger *log.Logger

	mu       sync.Mutex
	pipeline *Pipeline
	watchdog *Watchdog
	state    State
	emitted  State

	watchID  WatchID
	watching bool
	watchGen uint64
	recalGen uint64

	stopPermission func()
	started        bool
	closed         bool

	// set while Start waits on the permission query; changes announced in
	// that window are parked in probed and win over the query's answer
	probing bool
	probed  PermissionState

	listeners    []listener
	nextListener int
}

type listener struct {
	id int
	fn func(State)
}

// NewController creates a controller over loc. Call Start to begin.
func NewController(loc Locator, cfg Config, opts ...Option) (*Controller, error) {
	if loc == nil {
		return nil, errors.New("position: nil locator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("position: %w", err)
	}

	c := &Controller{
		cfg:      cfg,
		loc:      loc,
		clock:    SystemClock,
		logger:   log.Default(),
		pipeline: NewPipeline(cfg),
		state:    State{Permission: PermissionPrompt, Loading: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.emitted = c.state
	c.watchdog = NewWatchdog(c.clock, cfg.StaleAfter, &c.mu, c.onStale)
	return c, nil
}

// Start probes the platform and, when allowed, starts the continuous
// subscription. It is a no-op after the first call or after Close.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true

	if !c.loc.Supported() {
		c.logger.Println("position: location not supported")
		c.unsupportedLocked()
		c.emitLocked()
		c.mu.Unlock()
		return
	}
	if n, ok := c.loc.(PermissionNotifier); ok {
		c.stopPermission = n.OnPermissionChange(c.onPermissionChanged)
	}
	c.probing = true
	c.mu.Unlock()

	// the query may block, so it runs unlocked
	perm, queried := PermissionPrompt, false
	if q, ok := c.loc.(PermissionQuerier); ok {
		p, err := q.QueryPermission(ctx)
		if err != nil {
			c.logger.Printf("position: permission query failed, subscribing optimistically: %v", err)
		} else {
			perm, queried = p, true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.probing = false
	if c.closed {
		return
	}
	if c.probed != "" {
		c.logger.Printf("position: permission changed to %q during query", c.probed)
		perm, queried = c.probed, true
		c.probed = ""
	}

	switch {
	case queried && perm == PermissionDenied:
		// some platforms never prompt again once denied; a watch would hang
		c.logger.Println("position: permission denied, not subscribing")
		c.denyLocked(ErrPermissionDenied)
	case queried && perm == PermissionUnsupported:
		c.unsupportedLocked()
	default:
		if queried {
			c.state.Permission = perm
		}
		c.startWatchLocked()
	}
	c.emitLocked()
}

// Close cancels the subscription, disarms the watchdog and drops the
// permission listener. No state updates happen afterwards. Safe to call
// repeatedly.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	c.stopWatchLocked()
	c.watchdog.Stop()
	if c.stopPermission != nil {
		c.stopPermission()
		c.stopPermission = nil
	}
	c.listeners = nil
}

// State returns a snapshot of the public state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Watching reports whether a continuous subscription is active.
func (c *Controller) Watching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watching
}

// Subscribe registers fn to be called with every new state. fn runs with
// the controller lock held and must not call back into the controller.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(fn)
}

// Observe is Subscribe that first calls fn with the current state, under
// the same lock acquisition, so no state can slip in between.
func (c *Controller) Observe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state)
	return c.subscribeLocked(fn)
}

func (c *Controller) subscribeLocked(fn func(State)) func() {
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// DistanceTo returns the distance in meters from the exposed position to
// the given point, or false while the position is unknown.
func (c *Controller) DistanceTo(lat, lon float64) (float64, bool) {
	s := c.State()
	if !s.HasFix {
		return 0, false
	}
	return geo.DistanceMeters(s.Latitude, s.Longitude, lat, lon), true
}

func (c *Controller) onReading(gen uint64, r RawReading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.watching || gen != c.watchGen {
		return
	}
	c.acceptLocked(r)
	c.emitLocked()
}

func (c *Controller) onError(gen uint64, code ErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.watching || gen != c.watchGen {
		return
	}

	err := Classify(code)
	if errors.Is(err, ErrPermissionDenied) {
		c.logger.Println("position: permission denied by platform, stopping watch")
		c.stopWatchLocked()
		c.denyLocked(err)
	} else {
		c.transientLocked(err)
	}
	c.emitLocked()
}

func (c *Controller) onPermissionChanged(p PermissionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.probing {
		if _, ok := ParsePermissionState(string(p)); ok {
			c.probed = p
		}
		return
	}

	switch p {
	case PermissionDenied:
		if c.watching {
			c.logger.Println("position: permission revoked, stopping watch")
			c.stopWatchLocked()
			c.denyLocked(ErrPermissionRevoked)
		} else {
			c.state.Permission = PermissionDenied
			c.state.Loading = false
		}
	case PermissionGranted:
		c.state.Permission = PermissionGranted
		if !c.watching {
			c.logger.Println("position: permission granted, starting watch")
			c.state.Error = ""
			c.startWatchLocked()
		}
	case PermissionPrompt:
		c.state.Permission = PermissionPrompt
	default:
		c.logger.Printf("position: ignoring permission change to %q", p)
		return
	}
	c.emitLocked()
}

// onStale runs from the watchdog with c.mu held.
func (c *Controller) onStale() {
	if c.closed {
		return
	}
	c.logger.Printf("position: no accepted reading for %s", c.cfg.StaleAfter)
	c.state.Stale = true
	c.state.Error = ErrSignalStale.Error()
	c.emitLocked()
}

// acceptLocked runs a reading from any source through the pipeline and
// applies its side effects.
func (c *Controller) acceptLocked(r RawReading) Outcome {
	out := c.pipeline.Process(r)
	if !out.Verdict.Alive() {
		c.logger.Printf("position: rejected reading with accuracy %.0f m", r.AccuracyMeters)
		return out
	}

	c.watchdog.Rearm()
	if out.Verdict == Published {
		c.state.HasFix = true
		c.state.Latitude = out.Fix.Latitude
		c.state.Longitude = out.Fix.Longitude
		c.state.AccuracyMeters = out.Fix.AccuracyMeters
	}
	c.state.Error = ""
	c.state.Loading = false
	c.state.Stale = false
	c.state.Permission = PermissionGranted
	return out
}

func (c *Controller) startWatchLocked() {
	c.watchGen++
	gen := c.watchGen
	c.watchID = c.loc.Watch(
		func(r RawReading) { c.onReading(gen, r) },
		func(code ErrorCode) { c.onError(gen, code) },
		WatchOptions{
			HighAccuracy: true,
			MaxAge:       c.cfg.WatchMaxAge,
			Timeout:      c.cfg.WatchTimeout,
		},
	)
	c.watching = true
	if !c.state.HasFix {
		c.state.Loading = true
	}
}

func (c *Controller) stopWatchLocked() {
	if !c.watching {
		return
	}
	c.loc.ClearWatch(c.watchID)
	c.watching = false
	c.watchGen++
}

func (c *Controller) denyLocked(err error) {
	c.watchdog.Stop()
	c.state.Permission = PermissionDenied
	c.state.Error = err.Error()
	c.state.Loading = false
}

func (c *Controller) unsupportedLocked() {
	c.state.Permission = PermissionUnsupported
	c.state.Error = ErrUnsupported.Error()
	c.state.Loading = false
}

// transientLocked surfaces a transient error only while nothing has been
// published; afterwards it would flap a working display.
func (c *Controller) transientLocked(err error) {
	if c.state.HasFix {
		c.logger.Printf("position: suppressed transient error: %v", err)
		return
	}
	c.state.Error = err.Error()
	c.state.Loading = false
}

func (c *Controller) emitLocked() {
	if c.state == c.emitted {
		return
	}
	c.emitted = c.state
	for _, l := range c.listeners {
		l.fn(c.state)
	}
}
