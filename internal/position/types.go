// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package position turns a noisy stream of raw location readings into a
// stable, rate-limited position signal and tracks the permission lifecycle
// needed to receive that stream.
package position

import "time"

// RawReading is a single fix as reported by the location platform.
type RawReading struct {
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	Speed          *float64  `json:"speed_mps,omitempty"` // nil when the platform does not know
	Timestamp      time.Time `json:"timestamp"`
}

// Fix projects the reading onto the fields the smoother works with.
func (r RawReading) Fix() Fix {
	return Fix{
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		AccuracyMeters: r.AccuracyMeters,
	}
}

// Fix is a position estimate: latitude/longitude in decimal degrees plus an
// accuracy radius in meters.
type Fix struct {
	Latitude       float64 `json:"lat"`
	Longitude      float64 `json:"lon"`
	AccuracyMeters float64 `json:"accuracy_m"`
}

// PermissionState is the platform permission for receiving locations.
type PermissionState string

const (
	PermissionPrompt      PermissionState = "prompt"
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
	PermissionUnsupported PermissionState = "unsupported"
)

// ParsePermissionState maps a textual permission to a PermissionState.
// Unknown values report ok == false.
func ParsePermissionState(s string) (PermissionState, bool) {
	switch p := PermissionState(s); p {
	case PermissionPrompt, PermissionGranted, PermissionDenied, PermissionUnsupported:
		return p, true
	}
	return "", false
}

// State is the only data surface exposed to consumers.
type State struct {
	HasFix         bool            `json:"has_fix"`
	Latitude       float64         `json:"lat"`
	Longitude      float64         `json:"lon"`
	AccuracyMeters float64         `json:"accuracy_m"`
	Error          string          `json:"error,omitempty"`
	Loading        bool            `json:"loading"`
	Permission     PermissionState `json:"permission"`
	Stale          bool            `json:"stale"`
}

// Fix returns the exposed coordinates, if any.
func (s State) Fix() (Fix, bool) {
	if !s.HasFix {
		return Fix{}, false
	}
	return Fix{Latitude: s.Latitude, Longitude: s.Longitude, AccuracyMeters: s.AccuracyMeters}, true
}
