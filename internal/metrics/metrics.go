// Package metrics holds the process-wide counters the stats verb
// reports, as plain atomics rather than a mutex-guarded struct so the
// hot dispatch path never contends on them.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics accumulates cumulative operation counters across the life of
// the process. Shaped after ublk's atomic-counters Metrics struct,
// repurposed from I/O op counts to job-verb counts.
type Metrics struct {
	PutCt     atomic.Uint64
	ReserveCt atomic.Uint64
	DeleteCt  atomic.Uint64
	ReleaseCt atomic.Uint64
	BuryCt    atomic.Uint64
	KickCt    atomic.Uint64
	TimeoutCt atomic.Uint64
	PeekCt    atomic.Uint64
	StatsCt   atomic.Uint64

	TotalJobs atomic.Uint64

	StartTime time.Time
}

// New returns a freshly-zeroed Metrics stamped with the current time as
// the process start, which Uptime measures from. The stats verb's uptime
// field is computed from the engine's own start time instead.
func New() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// Uptime reports how long the process has been running.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.StartTime)
}
