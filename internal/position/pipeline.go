// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import "github.com/relabs-tech/geofix/internal/geo"

// Verdict is what the gate pipeline decided for one reading.
type Verdict int

const (
	// Rejected: the reading was discarded by the accuracy gate. Nothing
	// changed and the signal is not considered alive.
	Rejected Verdict = iota
	// Frozen: the device is stationary; the displayed position is held
	// but the signal is alive.
	Frozen
	// Held: the smoothed position moved less than the publish threshold.
	Held
	// Published: the smoothed position is the new published position.
	Published
)

func (v Verdict) String() string {
	switch v {
	case Rejected:
		return "rejected"
	case Frozen:
		return "frozen"
	case Held:
		return "held"
	case Published:
		return "published"
	default:
		return "unknown"
	}
}

// Alive reports whether the verdict proves the signal is alive.
func (v Verdict) Alive() bool {
	return v != Rejected
}

// Outcome is the result of Pipeline.Process.
type Outcome struct {
	Verdict Verdict
	// Fix is the published position when Verdict == Published.
	Fix Fix
	// Moved is the distance from the previous published position, or -1
	// when nothing had been published yet.
	Moved float64
}

// Pipeline holds the filter state shared by every reading source: the EMA
// accumulator, the last published position and the stationary run length.
type Pipeline struct {
	cfg Config

	smoothed    *Fix
	published   *Fix
	stableCount int
}

// NewPipeline creates an empty pipeline.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Process runs one reading through the gates:
//
//  1. accuracy gate (only once a baseline exists)
//  2. stationary gate with run-length snap
//  3. smoothing
//  4. movement threshold against the published position
//
// The caller owns the side effects: rearming the watchdog for any verdict
// that is Alive and updating public state on Published.
func (p *Pipeline) Process(r RawReading) Outcome {
	if p.smoothed != nil && r.AccuracyMeters > p.cfg.MaxAccuracyMeters {
		return Outcome{Verdict: Rejected, Moved: -1}
	}

	if p.smoothed != nil && r.Speed != nil && *r.Speed >= 0 && *r.Speed < p.cfg.StationarySpeed {
		p.stableCount++
		if p.stableCount >= p.cfg.StationaryRun {
			return Outcome{Verdict: Frozen, Moved: -1}
		}
	} else {
		p.stableCount = 0
	}

	next := Smooth(p.smoothed, r.Fix(), p.cfg.SmoothingAlpha)
	p.smoothed = &next

	if p.published == nil {
		p.published = &next
		return Outcome{Verdict: Published, Fix: next, Moved: -1}
	}

	moved := geo.DistanceMeters(p.published.Latitude, p.published.Longitude, next.Latitude, next.Longitude)
	if moved >= p.cfg.MinMoveMeters {
		p.published = &next
		return Outcome{Verdict: Published, Fix: next, Moved: moved}
	}
	return Outcome{Verdict: Held, Moved: moved}
}

// Smoothed returns the current EMA accumulator.
func (p *Pipeline) Smoothed() (Fix, bool) {
	if p.smoothed == nil {
		return Fix{}, false
	}
	return *p.smoothed, true
}

// Published returns the last published position.
func (p *Pipeline) Published() (Fix, bool) {
	if p.published == nil {
		return Fix{}, false
	}
	return *p.published, true
}

// StableCount returns the current run of stationary readings.
func (p *Pipeline) StableCount() int {
	return p.stableCount
}
