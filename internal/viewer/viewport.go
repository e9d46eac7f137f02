// Package viewer implements the viewer-facing WebSocket endpoint: bounds
// updates in, filtered vehicle snapshots out at a fixed cadence.
package viewer

import "github.com/fleetwatch/buswatch/internal/world"

// Viewport is a viewer's last-reported map bounds. Set is an explicit
// presence flag rather than relying on an all-zero sentinel, so a viewport
// that happens to straddle (0,0) is never mistaken for "never reported any
// bounds".
type Viewport struct {
	SouthLat float64
	NorthLat float64
	WestLng  float64
	EastLng  float64
	Set      bool
}

// Contains reports whether (lat, lng) falls within the viewport's exact
// bounds. Used to trim the coarse cell-range query down to the precise
// rectangle the viewer asked for.
func (v Viewport) Contains(lat, lng float64) bool {
	return lat >= v.SouthLat && lat <= v.NorthLat && lng >= v.WestLng && lng <= v.EastLng
}

// CellRange computes the inclusive grid-cell rectangle covering the
// viewport under the given cell size, for use with world.Store.QueryCells.
func (v Viewport) CellRange(cellSize float64) (cxLo, cxHi, cyLo, cyHi int64) {
	sw := world.CellOf(v.SouthLat, v.WestLng, cellSize)
	ne := world.CellOf(v.NorthLat, v.EastLng, cellSize)
	return sw.CX, ne.CX, sw.CY, ne.CY
}
