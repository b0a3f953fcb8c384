package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory authority metrics using atomic counters.
type Metrics struct {
	startTime     time.Time
	requests      atomic.Int64
	serverErrors  atomic.Int64
	clientErrors  atomic.Int64
	batches       atomic.Int64
	opsApplied    atomic.Int64
	conflicts     atomic.Int64
	duplicates    atomic.Int64
	stateRequests atomic.Int64
	rateLimited   atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	Requests      int64   `json:"requests"`
	ServerErrors  int64   `json:"server_errors"`
	ClientErrors  int64   `json:"client_errors"`
	Batches       int64   `json:"batches"`
	OpsApplied    int64   `json:"ops_applied"`
	Conflicts     int64   `json:"conflicts"`
	Duplicates    int64   `json:"duplicates"`
	StateRequests int64   `json:"state_requests"`
	RateLimited   int64   `json:"rate_limited"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RecordRequest()     { m.requests.Add(1) }
func (m *Metrics) RecordError()       { m.serverErrors.Add(1) }
func (m *Metrics) RecordClientError() { m.clientErrors.Add(1) }
func (m *Metrics) RecordState()       { m.stateRequests.Add(1) }
func (m *Metrics) RecordRateLimited() { m.rateLimited.Add(1) }

// RecordBatch counts one resolved apply request.
func (m *Metrics) RecordBatch(applied, conflicts, duplicates int) {
	m.batches.Add(1)
	m.opsApplied.Add(int64(applied))
	m.conflicts.Add(int64(conflicts))
	m.duplicates.Add(int64(duplicates))
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds: time.Since(m.startTime).Seconds(),
		Requests:      m.requests.Load(),
		ServerErrors:  m.serverErrors.Load(),
		ClientErrors:  m.clientErrors.Load(),
		Batches:       m.batches.Load(),
		OpsApplied:    m.opsApplied.Load(),
		Conflicts:     m.conflicts.Load(),
		Duplicates:    m.duplicates.Load(),
		StateRequests: m.stateRequests.Load(),
		RateLimited:   m.rateLimited.Load(),
	}
}
