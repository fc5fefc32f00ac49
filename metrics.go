package authcore

import "sync/atomic"

// MetricID names one in-process counter.
type MetricID uint16

const (
	// MetricFetchSuccess counts 2xx outcomes.
	MetricFetchSuccess MetricID = iota
	// MetricFetchClientError counts non-2xx, non-auth outcomes.
	MetricFetchClientError
	// MetricFetchTransportError counts connectivity failures.
	MetricFetchTransportError
	// MetricFetchAuthFailure counts terminal authorization failures.
	MetricFetchAuthFailure
	// MetricRefreshAttempt counts entries into the refresh state.
	MetricRefreshAttempt
	// MetricRefreshSuccess counts committed token rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected or unavailable refreshes.
	MetricRefreshFailure
	// MetricForcedLogout counts session-invalidating failures.
	MetricForcedLogout
	// MetricLoginCommitted counts token pairs committed by the login flow.
	MetricLoginCommitted
	// MetricStageAdvance counts forward login-flow stage transitions.
	MetricStageAdvance
	// MetricFlowReset counts user-triggered flow resets.
	MetricFlowReset
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the core's in-process counters. All methods are safe for
// concurrent use; a nil receiver is a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics returns a Metrics honoring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counting is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value returns the current counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
