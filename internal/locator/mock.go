// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package locator implements position.Locator on top of concrete sources.
package locator

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/relabs-tech/geofix/internal/geo"
	"github.com/relabs-tech/geofix/internal/position"
)

const (
	mockRadiusM   = 60.0
	mockPeriod    = 120 * time.Second
	mockPauseFrom = 0.75 // last quarter of every lap is spent standing still
	mockNoiseM    = 3.0
	mockOutlierP  = 0.05
)

// Mock walks laps around an origin, pausing at the end of each lap, with
// jitter and the occasional wildly inaccurate fix.
type Mock struct {
	origin   geo.Point
	interval time.Duration
	start    time.Time

	mu        sync.Mutex
	rng       *rand.Rand
	perm      position.PermissionState
	nextID    position.WatchID
	watches   map[position.WatchID]chan struct{}
	listeners map[int]func(position.PermissionState)
	nextLis   int
}

// NewMock creates a mock locator that reports every interval.
func NewMock(origin geo.Point, interval time.Duration) *Mock {
	return &Mock{
		origin:    origin,
		interval:  interval,
		start:     time.Now(),
		rng:       rand.New(rand.NewPCG(uint64(origin.Lat*1e6), uint64(origin.Lon*1e6))),
		perm:      position.PermissionGranted,
		watches:   map[position.WatchID]chan struct{}{},
		listeners: map[int]func(position.PermissionState){},
	}
}

func (m *Mock) Supported() bool { return true }

func (m *Mock) Watch(onReading func(position.RawReading), onError func(position.ErrorCode), opts position.WatchOptions) position.WatchID {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	done := make(chan struct{})
	m.watches[id] = done

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case t := <-ticker.C:
				if m.permission() == position.PermissionDenied {
					onError(position.CodePermissionDenied)
					continue
				}
				onReading(m.ReadingAt(t.Sub(m.start)))
			}
		}
	}()
	return id
}

func (m *Mock) ClearWatch(id position.WatchID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if done, ok := m.watches[id]; ok {
		close(done)
		delete(m.watches, id)
	}
}

func (m *Mock) RequestOnce(onReading func(position.RawReading), onError func(position.ErrorCode), opts position.WatchOptions) {
	wait := m.interval
	if opts.Timeout > 0 && opts.Timeout < wait {
		wait = opts.Timeout
	}
	time.AfterFunc(wait, func() {
		if m.permission() == position.PermissionDenied {
			onError(position.CodePermissionDenied)
			return
		}
		r := m.ReadingAt(time.Since(m.start))
		if opts.HighAccuracy {
			r.AccuracyMeters = math.Min(r.AccuracyMeters, 4)
		}
		onReading(r)
	})
}

func (m *Mock) QueryPermission(ctx context.Context) (position.PermissionState, error) {
	return m.permission(), nil
}

func (m *Mock) OnPermissionChange(fn func(position.PermissionState)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLis++
	id := m.nextLis
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// SetPermission changes the simulated permission and notifies listeners.
func (m *Mock) SetPermission(p position.PermissionState) {
	m.mu.Lock()
	if m.perm == p {
		m.mu.Unlock()
		return
	}
	m.perm = p
	fns := make([]func(position.PermissionState), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (m *Mock) permission() position.PermissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perm
}

// ReadingAt returns the simulated reading elapsed into the run.
func (m *Mock) ReadingAt(elapsed time.Duration) position.RawReading {
	m.mu.Lock()
	noiseN, noiseE := m.rng.NormFloat64()*mockNoiseM, m.rng.NormFloat64()*mockNoiseM
	outlier := m.rng.Float64() < mockOutlierP
	m.mu.Unlock()

	phase := math.Mod(elapsed.Seconds(), mockPeriod.Seconds()) / mockPeriod.Seconds()
	speed := 0.0
	angle := 2 * math.Pi
	if phase < mockPauseFrom {
		angle = 2 * math.Pi * phase / mockPauseFrom
		speed = 2 * math.Pi * mockRadiusM / (mockPeriod.Seconds() * mockPauseFrom)
	}

	north := mockRadiusM*math.Sin(angle) + noiseN
	east := mockRadiusM*(math.Cos(angle)-1) + noiseE
	lat, lon := offset(m.origin, north, east)

	accuracy := 5 + math.Abs(noiseN+noiseE)
	if outlier {
		accuracy = 150 + 100*math.Abs(noiseE)
	}
	return position.RawReading{
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: accuracy,
		Speed:          &speed,
		Timestamp:      m.start.Add(elapsed),
	}
}

// offset moves p by the given meters north and east.
func offset(p geo.Point, north, east float64) (float64, float64) {
	dLat := north / geo.EarthRadiusMeters * 180 / math.Pi
	dLon := east / (geo.EarthRadiusMeters * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return p.Lat + dLat, p.Lon + dLon
}
