// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"fmt"
	"time"
)

const (
	DefaultSmoothingAlpha     = 0.15
	DefaultMaxAccuracyMeters  = 100.0
	DefaultStationarySpeed    = 0.3 // m/s
	DefaultStationaryRun      = 3
	DefaultMinMoveMeters      = 5.0
	DefaultStaleAfter         = 30 * time.Second
	DefaultWatchTimeout       = 20 * time.Second
	DefaultWatchMaxAge        = 5 * time.Second
	DefaultRecalibrateTimeout = 20 * time.Second
)

// Config holds the filter thresholds and timeouts.
type Config struct {
	// SmoothingAlpha is the EMA weight of a new reading (0-1]. Higher values
	// track movement faster but let more jitter through.
	SmoothingAlpha float64

	// MaxAccuracyMeters rejects readings with a larger accuracy radius once
	// a baseline exists.
	MaxAccuracyMeters float64

	// StationarySpeed is the reported speed (m/s) under which a reading
	// counts as stationary.
	StationarySpeed float64

	// StationaryRun is how many consecutive stationary readings freeze the
	// displayed position.
	StationaryRun int

	// MinMoveMeters is the smallest movement of the smoothed position that
	// gets published.
	MinMoveMeters float64

	StaleAfter         time.Duration
	WatchTimeout       time.Duration
	WatchMaxAge        time.Duration
	RecalibrateTimeout time.Duration
}

// DefaultConfig returns the design defaults.
func DefaultConfig() Config {
	return Config{
		SmoothingAlpha:     DefaultSmoothingAlpha,
		MaxAccuracyMeters:  DefaultMaxAccuracyMeters,
		StationarySpeed:    DefaultStationarySpeed,
		StationaryRun:      DefaultStationaryRun,
		MinMoveMeters:      DefaultMinMoveMeters,
		StaleAfter:         DefaultStaleAfter,
		WatchTimeout:       DefaultWatchTimeout,
		WatchMaxAge:        DefaultWatchMaxAge,
		RecalibrateTimeout: DefaultRecalibrateTimeout,
	}
}

// Validate checks that the thresholds are usable.
func (c Config) Validate() error {
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("smoothing alpha must be in (0, 1], got %v", c.SmoothingAlpha)
	}
	if c.MaxAccuracyMeters <= 0 {
		return fmt.Errorf("max accuracy must be positive, got %v", c.MaxAccuracyMeters)
	}
	if c.StationarySpeed < 0 {
		return fmt.Errorf("stationary speed must not be negative, got %v", c.StationarySpeed)
	}
	if c.StationaryRun < 1 {
		return fmt.Errorf("stationary run must be at least 1, got %d", c.StationaryRun)
	}
	if c.MinMoveMeters < 0 {
		return fmt.Errorf("min move must not be negative, got %v", c.MinMoveMeters)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale timeout must be positive, got %v", c.StaleAfter)
	}
	if c.WatchTimeout <= 0 || c.RecalibrateTimeout <= 0 {
		return fmt.Errorf("request timeouts must be positive")
	}
	if c.WatchMaxAge < 0 {
		return fmt.Errorf("watch max age must not be negative, got %v", c.WatchMaxAge)
	}
	return nil
}
