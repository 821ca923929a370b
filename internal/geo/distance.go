// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceMeters returns the great-circle distance between two points
// in meters, using the haversine formula.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// DistanceTo returns the distance in meters from p to q.
func (p Point) DistanceTo(q Point) float64 {
	return DistanceMeters(p.Lat, p.Lon, q.Lat, q.Lon)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
