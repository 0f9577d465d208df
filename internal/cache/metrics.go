package cache

import "sync/atomic"

// MetricsSnapshot is a point-in-time copy of the cache counters.
type MetricsSnapshot struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Computes      uint64 `json:"computes"`
	Invalidations uint64 `json:"invalidations"`
	BackendErrors uint64 `json:"backend_errors"`
}

// Metrics counts cache activity.
type Metrics struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	computes      atomic.Uint64
	invalidations atomic.Uint64
	backendErrors atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		Computes:      m.computes.Load(),
		Invalidations: m.invalidations.Load(),
		BackendErrors: m.backendErrors.Load(),
	}
}
