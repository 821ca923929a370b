// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

// Smooth blends next into prev with an exponential moving average:
//
//	out = alpha*next + (1-alpha)*prev
//
// applied to latitude, longitude and accuracy. Without a previous value
// next is returned unchanged.
func Smooth(prev *Fix, next Fix, alpha float64) Fix {
	if prev == nil {
		return next
	}
	return Fix{
		Latitude:       ema(prev.Latitude, next.Latitude, alpha),
		Longitude:      ema(prev.Longitude, next.Longitude, alpha),
		AccuracyMeters: ema(prev.AccuracyMeters, next.AccuracyMeters, alpha),
	}
}

func ema(prev, next, alpha float64) float64 {
	return alpha*next + (1-alpha)*prev
}
