// README: Common identifier and geographic value objects used across modules.
package types

import "time"

// ID is an opaque entity identifier (trips, drivers, subscribers).
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the latitude/longitude domain.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ETA is a travel estimate returned by the directions oracle.
type ETA struct {
	Duration       time.Duration
	DistanceMeters int
}
