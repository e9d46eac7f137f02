// Package reaper evicts vehicles that have stopped reporting positions.
package reaper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fleetwatch/buswatch/internal/logger"
	"github.com/fleetwatch/buswatch/internal/metrics"
	"github.com/fleetwatch/buswatch/internal/world"
)

// Clock lets tests control "now" independently of the wall clock.
type Clock func() time.Time

// Reaper periodically evicts vehicles whose last update is older than the
// current staleness window. It is the only non-gateway writer of
// world.Store. Interval and staleness are stored atomically so a config
// hot-reload can retune a running reaper without restarting it.
type Reaper struct {
	Store   *world.Store
	Metrics *metrics.Registry
	Now     Clock

	intervalNanos  atomic.Int64
	stalenessNanos atomic.Int64
}

// New creates a Reaper with the given reap interval and staleness window.
func New(store *world.Store, reg *metrics.Registry, interval, staleness time.Duration) *Reaper {
	r := &Reaper{Store: store, Metrics: reg, Now: time.Now}
	r.SetTunables(interval, staleness)
	return r
}

// SetTunables atomically updates the reap interval and staleness window.
// Safe to call from a config-watch goroutine while Run is active.
func (r *Reaper) SetTunables(interval, staleness time.Duration) {
	r.intervalNanos.Store(int64(interval))
	r.stalenessNanos.Store(int64(staleness))
}

func (r *Reaper) interval() time.Duration  { return time.Duration(r.intervalNanos.Load()) }
func (r *Reaper) staleness() time.Duration { return time.Duration(r.stalenessNanos.Load()) }

// Run ticks every current interval until ctx is cancelled, evicting stale
// vehicles each cycle. One pass: collect the stale ids under a read lock,
// then evict each unconditionally. A vehicle upserted between the scan and
// its eviction is still evicted — it will simply reappear in the table on
// its next producer message, matching the race the original implementation
// accepts rather than guards against.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()
	currentInterval := r.interval()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reapOnce()
			if next := r.interval(); next != currentInterval {
				ticker.Reset(next)
				currentInterval = next
			}
		}
	}
}

func (r *Reaper) reapOnce() {
	stale := r.Store.StaleIDs(r.Now(), r.staleness())
	for _, id := range stale {
		r.Store.Evict(id)
	}

	if len(stale) > 0 {
		logger.Info("reaped stale vehicles", "count", len(stale))
	} else {
		logger.Debug("reap cycle found no stale vehicles")
	}
	if r.Metrics != nil && len(stale) > 0 {
		r.Metrics.VehiclesEvicted.Add(int64(len(stale)))
	}
}
