// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"context"
	"testing"
	"time"

	"github.com/relabs-tech/geofix/internal/geo"
)

func TestProximity_UnknownUntilBothEndpoints(t *testing.T) {
	loc := newFakeLocator()
	c, _ := newTestController(t, loc)
	c.Start(context.Background())
	p := NewProximity(c)
	defer p.Close()

	if _, ok := p.Distance(); ok {
		t.Error("distance known without observer or target")
	}

	p.SetTarget(baseLat+farStep, baseLon)
	if _, ok := p.Distance(); ok {
		t.Error("distance known without observer position")
	}

	loc.emit(reading(baseLat, baseLon, 10))
	d, ok := p.Distance()
	want := geo.DistanceMeters(baseLat, baseLon, baseLat+farStep, baseLon)
	if !ok || d != want {
		t.Errorf("Distance = %v, %v, want %v", d, ok, want)
	}

	p.ClearTarget()
	if _, ok := p.Distance(); ok {
		t.Error("distance known after clearing the target")
	}
}

func TestProximity_ReevaluatesOnChange(t *testing.T) {
	loc := newFakeLocator()
	c, _ := newTestController(t, loc)
	c.Start(context.Background())
	loc.emit(reading(baseLat, baseLon, 10))

	p := NewProximity(c)
	defer p.Close()

	var got []float64
	p.OnChange(func(m float64, ok bool) {
		if ok {
			got = append(got, m)
		}
	})

	p.SetTarget(baseLat, baseLon)
	p.SetTarget(baseLat, baseLon) // unchanged, no re-evaluation
	loc.emit(reading(baseLat+farStep, baseLon, 10))
	loc.emit(reading(baseLat+nearStep, baseLon, 10)) // held, observer unchanged

	if len(got) != 2 {
		t.Fatalf("got %d evaluations, want 2: %v", len(got), got)
	}
	if got[0] != 0 {
		t.Errorf("first distance = %v, want 0", got[0])
	}
	if got[1] < DefaultMinMoveMeters {
		t.Errorf("second distance = %v, want at least the publish threshold", got[1])
	}
}

func TestProximity_CloseStopsFollowing(t *testing.T) {
	loc := newFakeLocator()
	c, _ := newTestController(t, loc)
	c.Start(context.Background())
	p := NewProximity(c)
	p.SetTarget(baseLat, baseLon)

	p.Close()
	loc.emit(reading(baseLat, baseLon, 10))

	if _, ok := p.Distance(); ok {
		t.Error("proximity followed the controller after Close")
	}
}

func TestProximity_ListenerMayReadDistance(t *testing.T) {
	loc := newFakeLocator()
	c, _ := newTestController(t, loc)
	c.Start(context.Background())
	p := NewProximity(c)
	defer p.Close()
	p.SetTarget(baseLat, baseLon)

	seen := make(chan bool, 4)
	p.OnChange(func(m float64, ok bool) {
		d, known := p.Distance()
		seen <- known == ok && d == m
	})

	done := make(chan struct{})
	go func() {
		loc.emit(reading(baseLat+farStep, baseLon, 10))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener calling Distance blocked the controller")
	}
	if consistent := <-seen; !consistent {
		t.Error("listener value disagrees with Distance")
	}
}
