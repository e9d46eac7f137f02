package world

import (
	"sync"
	"time"
)

// Store owns the vehicle table and the spatial grid index. It is the only
// shared mutable state in the server: the producer gateway and the zombie
// reaper mutate it, viewer sessions only read from it. A single
// sync.RWMutex guards both structures so that a range query never observes
// a vehicle whose (lat, lng) contradicts the cell it is indexed under.
type Store struct {
	mu       sync.RWMutex
	cellSize float64
	vehicles map[string]*Vehicle
	grid     map[CellKey]map[string]struct{}
}

// New creates an empty Store using cellSize (degrees) as the grid's cell
// edge length.
func New(cellSize float64) *Store {
	return &Store{
		cellSize: cellSize,
		vehicles: make(map[string]*Vehicle),
		grid:     make(map[CellKey]map[string]struct{}),
	}
}

// CellSize returns the grid's cell edge length.
func (s *Store) CellSize() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cellSize
}

// CellOf computes the cell a position falls into under this store's
// configured cell size.
func (s *Store) CellOf(lat, lng float64) CellKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CellOf(lat, lng, s.cellSize)
}

// SetCellSize changes the cell size used for future Upserts. Vehicles
// already indexed keep the cell they were placed in until their next
// Upsert recomputes it under the new size — a hot-reloaded cell size is
// not retroactively applied to the existing grid.
func (s *Store) SetCellSize(cellSize float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cellSize = cellSize
}

// Upsert creates a vehicle if id is unknown, or updates its position,
// route, and last-seen timestamp in place. If the new position maps to a
// different grid cell, the id is atomically moved between the two cell
// sets. Holding the write lock across the whole operation means a
// concurrent QueryCells never observes the id indexed under one cell while
// its recorded Lat/Lng/Cell reflect another.
func (s *Store) Upsert(id string, lat, lng float64, route string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newCell := CellOf(lat, lng, s.cellSize)

	v, ok := s.vehicles[id]
	if !ok {
		v = &Vehicle{ID: id, Lat: lat, Lng: lng, Route: route, LastSeen: now, Cell: newCell}
		s.vehicles[id] = v
		s.insertIntoCell(id, newCell)
		return
	}

	v.Lat = lat
	v.Lng = lng
	v.Route = route
	v.LastSeen = now
	if newCell != v.Cell {
		s.removeFromCell(id, v.Cell)
		s.insertIntoCell(id, newCell)
		v.Cell = newCell
	}
}

// Evict removes a vehicle from the table and from its current cell. A
// no-op if id is unknown (e.g. already evicted by a racing reaper pass).
func (s *Store) Evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(id)
}

func (s *Store) evictLocked(id string) {
	v, ok := s.vehicles[id]
	if !ok {
		return
	}
	s.removeFromCell(id, v.Cell)
	delete(s.vehicles, id)
}

func (s *Store) insertIntoCell(id string, cell CellKey) {
	set, ok := s.grid[cell]
	if !ok {
		set = make(map[string]struct{})
		s.grid[cell] = set
	}
	set[id] = struct{}{}
}

func (s *Store) removeFromCell(id string, cell CellKey) {
	set, ok := s.grid[cell]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(s.grid, cell)
	}
}

// QueryCells yields a value copy of every vehicle present in any cell of
// the inclusive rectangle [cxLo, cxHi] x [cyLo, cyHi]. The copies are taken
// while the read lock is held, so each one is a self-consistent snapshot
// of (Lat, Lng, Route) at a single instant; different vehicles in the
// result may reflect different instants relative to one another.
func (s *Store) QueryCells(cxLo, cxHi, cyLo, cyHi int64) []Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Vehicle
	for cx := cxLo; cx <= cxHi; cx++ {
		for cy := cyLo; cy <= cyHi; cy++ {
			set, ok := s.grid[CellKey{CX: cx, CY: cy}]
			if !ok {
				continue
			}
			for id := range set {
				if v, ok := s.vehicles[id]; ok {
					out = append(out, *v)
				}
			}
		}
	}
	return out
}

// SnapshotAll yields a value copy of every vehicle currently tracked. Used
// only by viewer sessions whose viewport is unset.
func (s *Store) SnapshotAll() []Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, *v)
	}
	return out
}

// Len returns the number of tracked vehicles, for metrics and tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles)
}

// StaleIDs returns the ids of every vehicle whose LastSeen is older than
// staleness relative to now. It does not mutate the store; the reaper
// evicts each returned id itself, unconditionally, so a vehicle upserted
// between the scan and the evict is still evicted and reappears in the
// table on its next producer message.
func (s *Store) StaleIDs(now time.Time, staleness time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []string
	for id, v := range s.vehicles {
		if now.Sub(v.LastSeen) > staleness {
			stale = append(stale, id)
		}
	}
	return stale
}

// CellIDs returns the ids currently indexed under a cell, for tests that
// assert grid-consistency invariants directly.
func (s *Store) CellIDs(cell CellKey) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.grid[cell]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// VehicleCell returns the grid cell currently recorded for id.
func (s *Store) VehicleCell(id string) (CellKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return CellKey{}, false
	}
	return v.Cell, true
}
