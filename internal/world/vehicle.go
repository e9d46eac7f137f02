// Package world owns the in-memory vehicle table and spatial grid shared by
// the producer gateway, the viewer sessions, and the zombie reaper.
package world

import "time"

// Vehicle is a tracked entity with identity, current position, and the
// grid cell that position maps to.
type Vehicle struct {
	ID       string
	Lat      float64
	Lng      float64
	Route    string
	LastSeen time.Time
	Cell     CellKey
}

// CellKey identifies one square of the spatial grid.
type CellKey struct {
	CX int64
	CY int64
}

// CellOf computes the grid cell a (lat, lng) pair falls into for the given
// cell size, per spec: cx = floor(lat / cellSize), cy = floor(lng / cellSize).
func CellOf(lat, lng, cellSize float64) CellKey {
	return CellKey{CX: floorDiv(lat, cellSize), CY: floorDiv(lng, cellSize)}
}

func floorDiv(v, size float64) int64 {
	q := v / size
	f := int64(q)
	if q < 0 && float64(f) != q {
		f--
	}
	return f
}
