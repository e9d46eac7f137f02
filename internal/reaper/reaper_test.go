package reaper

import (
	"testing"
	"time"

	"github.com/fleetwatch/buswatch/internal/metrics"
	"github.com/fleetwatch/buswatch/internal/world"
)

// Scenario D: a vehicle idle past staleness is evicted on the next reap
// cycle; a fresh one survives.
func TestReapOnceEvictsOnlyStale(t *testing.T) {
	store := world.New(0.1)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Upsert("stale", 1, 1, "R1", base)
	store.Upsert("fresh", 2, 2, "R2", base.Add(9*time.Second))

	reg := &metrics.Registry{}
	r := New(store, reg, time.Second, 10*time.Second)
	r.Now = func() time.Time { return base.Add(11 * time.Second) }

	r.reapOnce()

	if store.Len() != 1 {
		t.Fatalf("store has %d vehicles, want 1", store.Len())
	}
	if _, ok := store.VehicleCell("fresh"); !ok {
		t.Error("fresh vehicle should survive the reap")
	}
	if _, ok := store.VehicleCell("stale"); ok {
		t.Error("stale vehicle should have been evicted")
	}
	if got := reg.VehiclesEvicted.Load(); got != 1 {
		t.Fatalf("VehiclesEvicted = %d, want 1", got)
	}
}

func TestReapOnceNoopWhenNothingStale(t *testing.T) {
	store := world.New(0.1)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Upsert("A", 1, 1, "R1", base)

	reg := &metrics.Registry{}
	r := New(store, reg, time.Second, 10*time.Second)
	r.Now = func() time.Time { return base.Add(time.Second) }

	r.reapOnce()

	if store.Len() != 1 {
		t.Fatalf("store has %d vehicles, want 1", store.Len())
	}
	if got := reg.VehiclesEvicted.Load(); got != 0 {
		t.Fatalf("VehiclesEvicted = %d, want 0", got)
	}
}
