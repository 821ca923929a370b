// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"sync"

	"github.com/relabs-tech/geofix/internal/geo"
)

// Proximity tracks the distance between the controller's exposed position
// and a target, re-evaluating whenever either one changes.
type Proximity struct {
	mu        sync.Mutex
	observer  *geo.Point
	target    *geo.Point
	listeners []func(float64, bool)
	cancel    func()

	// serialises listener calls; held without mu
	notifyMu sync.Mutex
}

// NewProximity follows c. Call Close to stop following.
func NewProximity(c *Controller) *Proximity {
	p := &Proximity{}
	p.cancel = c.Observe(p.setObserver)
	return p
}

// SetTarget sets the point distances are measured to.
func (p *Proximity) SetTarget(lat, lon float64) {
	p.mu.Lock()
	t := geo.Point{Lat: lat, Lon: lon}
	if p.target != nil && *p.target == t {
		p.mu.Unlock()
		return
	}
	p.target = &t
	p.mu.Unlock()
	p.notify()
}

// ClearTarget removes the target; Distance reports false afterwards.
func (p *Proximity) ClearTarget() {
	p.mu.Lock()
	if p.target == nil {
		p.mu.Unlock()
		return
	}
	p.target = nil
	p.mu.Unlock()
	p.notify()
}

// Distance returns the distance in meters, or false when the observer
// position or the target is unknown.
func (p *Proximity) Distance() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.distanceLocked()
}

// OnChange registers fn to be called with the current distance whenever an
// endpoint changes. fn may call Distance. It must not call SetTarget or
// ClearTarget, and when the change came from the controller it runs under
// the controller lock, so it must not call back into the controller either.
func (p *Proximity) OnChange(fn func(meters float64, ok bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Close stops following the controller.
func (p *Proximity) Close() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.listeners = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (p *Proximity) setObserver(s State) {
	p.mu.Lock()
	if !s.HasFix {
		if p.observer == nil {
			p.mu.Unlock()
			return
		}
		p.observer = nil
		p.mu.Unlock()
		p.notify()
		return
	}
	o := geo.Point{Lat: s.Latitude, Lon: s.Longitude}
	if p.observer != nil && *p.observer == o {
		p.mu.Unlock()
		return
	}
	p.observer = &o
	p.mu.Unlock()
	p.notify()
}

func (p *Proximity) distanceLocked() (float64, bool) {
	if p.observer == nil || p.target == nil {
		return 0, false
	}
	return p.observer.DistanceTo(*p.target), true
}

// notify hands listeners the distance as of now, so the last call always
// carries the latest value even when changes race.
func (p *Proximity) notify() {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	d, ok := p.distanceLocked()
	fns := append([]func(float64, bool){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(d, ok)
	}
}
