// Package metrics holds the process-wide operational counters exposed by
// the supervisor's debug endpoint. Nothing logs them periodically.
package metrics

import "sync/atomic"

// Registry is a small set of atomic counters. Zero value is ready to use.
type Registry struct {
	FramesParsed     atomic.Int64
	FramesSkipped    atomic.Int64
	FramesRejected   atomic.Int64
	SnapshotsSent    atomic.Int64
	VehiclesEvicted  atomic.Int64
	ConnectionsThrottled atomic.Int64
}

// Snapshot is a point-in-time copy of the counters, suitable for JSON
// encoding or logging.
type Snapshot struct {
	FramesParsed         int64 `json:"frames_parsed"`
	FramesSkipped        int64 `json:"frames_skipped"`
	FramesRejected       int64 `json:"frames_rejected"`
	SnapshotsSent        int64 `json:"snapshots_sent"`
	VehiclesEvicted      int64 `json:"vehicles_evicted"`
	ConnectionsThrottled int64 `json:"connections_throttled"`
	VehiclesTracked      int  `json:"vehicles_tracked"`
}

// Snapshot returns a copy of the current counter values plus the supplied
// live gauge (vehicles currently tracked, read from the world store by the
// caller since the registry itself doesn't own that state).
func (r *Registry) Snapshot(vehiclesTracked int) Snapshot {
	return Snapshot{
		FramesParsed:         r.FramesParsed.Load(),
		FramesSkipped:        r.FramesSkipped.Load(),
		FramesRejected:       r.FramesRejected.Load(),
		SnapshotsSent:        r.SnapshotsSent.Load(),
		VehiclesEvicted:      r.VehiclesEvicted.Load(),
		ConnectionsThrottled: r.ConnectionsThrottled.Load(),
		VehiclesTracked:      vehiclesTracked,
	}
}
