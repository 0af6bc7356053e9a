// Package geo maps coordinates onto a hierarchical spatial grid.
//
// Cells are encoded as base-4 digit strings where each digit halves the
// covered latitude/longitude span, so a parent cell is always a string
// prefix of its children. That prefix property is what the override scopes
// and locality checks rely on; the encoding itself can be swapped for an
// H3-style index without touching callers.
package geo

import (
	"errors"
	"math"
)

const (
	// MaxResolution is the deepest supported grid level.
	MaxResolution = 15

	// DefaultResolution yields cells of roughly 4-5km across at the
	// equator, which is the zone size surge pricing operates on.
	DefaultResolution = 12
)

var (
	// ErrInvalidCoordinates is returned for out-of-range lat/lng values.
	ErrInvalidCoordinates = errors.New("geo: invalid coordinates")

	// ErrInvalidResolution is returned for resolutions outside [1, MaxResolution].
	ErrInvalidResolution = errors.New("geo: invalid resolution")
)

// CellID identifies one cell in the grid. Its length equals its resolution.
type CellID string

// CellForLatLng resolves coordinates to the cell containing them at the
// given resolution. It is a pure function with no state.
func CellForLatLng(lat, lng float64, resolution int) (CellID, error) {
	if resolution < 1 || resolution > MaxResolution {
		return "", ErrInvalidResolution
	}
	if !ValidLatLng(lat, lng) {
		return "", ErrInvalidCoordinates
	}

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	digits := make([]byte, resolution)
	for i := 0; i < resolution; i++ {
		midLat := (minLat + maxLat) / 2
		midLng := (minLng + maxLng) / 2

		var d byte
		if lat >= midLat {
			d |= 2
			minLat = midLat
		} else {
			maxLat = midLat
		}
		if lng >= midLng {
			d |= 1
			minLng = midLng
		} else {
			maxLng = midLng
		}
		digits[i] = '0' + d
	}

	return CellID(digits), nil
}

// Resolution returns the cell's grid level.
func (c CellID) Resolution() int {
	return len(c)
}

// Valid reports whether the cell id is a well-formed digit string.
func (c CellID) Valid() bool {
	if len(c) < 1 || len(c) > MaxResolution {
		return false
	}
	for _, r := range c {
		if r < '0' || r > '3' {
			return false
		}
	}
	return true
}

// Parent returns the ancestor cell at the given coarser resolution.
// Asking for a resolution at or below the cell's own returns the cell itself.
func (c CellID) Parent(resolution int) CellID {
	if resolution < 1 || resolution >= len(c) {
		return c
	}
	return c[:resolution]
}

// Contains reports whether other lies within c (c is an ancestor of, or
// equal to, other). Prefix matching is exact for this encoding.
func (c CellID) Contains(other CellID) bool {
	if len(c) > len(other) {
		return false
	}
	return other[:len(c)] == c
}

// Center returns the centroid of the cell.
func (c CellID) Center() (lat, lng float64) {
	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	for i := 0; i < len(c); i++ {
		d := c[i] - '0'
		midLat := (minLat + maxLat) / 2
		midLng := (minLng + maxLng) / 2
		if d&2 != 0 {
			minLat = midLat
		} else {
			maxLat = midLat
		}
		if d&1 != 0 {
			minLng = midLng
		} else {
			maxLng = midLng
		}
	}

	return (minLat + maxLat) / 2, (minLng + maxLng) / 2
}

// RadiusKm returns the circumradius of the cell in kilometers, i.e. a
// search radius from the center guaranteed to cover the whole cell.
func (c CellID) RadiusKm() float64 {
	latSpan := 180.0 / math.Pow(2, float64(len(c)))
	lngSpan := 360.0 / math.Pow(2, float64(len(c)))

	lat, _ := c.Center()
	heightKm := latSpan * kmPerDegreeLat
	widthKm := lngSpan * kmPerDegreeLat * math.Cos(lat*math.Pi/180)

	return math.Sqrt(heightKm*heightKm+widthKm*widthKm) / 2
}

// ValidLatLng reports whether the coordinates are a real point on the globe.
func ValidLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

const (
	earthRadiusKm  = 6371.0
	kmPerDegreeLat = 111.32
)

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
