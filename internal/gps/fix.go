// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"time"

	"github.com/relabs-tech/geofix/internal/position"
)

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string    `json:"time"`                // e.g. "12:34:56"
	Date       string    `json:"date"`                // e.g. "06/12/25"
	Timestamp  time.Time `json:"timestamp"`           // receiver UTC time, local clock if unknown
	Latitude   float64   `json:"lat"`                 // decimal degrees
	Longitude  float64   `json:"lon"`                 // decimal degrees
	AccuracyM  float64   `json:"accuracy_m"`          // estimated horizontal accuracy
	SpeedMPS   *float64  `json:"speed_mps,omitempty"` // speed over ground, nil when unknown
	CourseDeg  float64   `json:"course_deg"`          // course over ground
	HDOP       float64   `json:"hdop,omitempty"`
	Satellites int64     `json:"satellites,omitempty"`
	Validity   string    `json:"validity"` // "A" (valid) / "V" (void)
}

// Reading converts the fix into the position pipeline's input.
func (f Fix) Reading() position.RawReading {
	return position.RawReading{
		Latitude:       f.Latitude,
		Longitude:      f.Longitude,
		AccuracyMeters: f.AccuracyM,
		Speed:          f.SpeedMPS,
		Timestamp:      f.Timestamp,
	}
}
