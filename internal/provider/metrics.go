package provider

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is the rolling performance record for one provider instance.
// Counters are atomic; the per-error-kind map has its own lock.
type Metrics struct {
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	totalLatencyNanos  atomic.Int64
	lastSuccessUnix    atomic.Int64
	lastFailureUnix    atomic.Int64

	mu          sync.Mutex
	errorCounts map[string]int64
}

// NewMetrics creates an empty metrics block.
func NewMetrics() *Metrics {
	return &Metrics{errorCounts: make(map[string]int64)}
}

// RecordSuccess counts a successful request and its latency.
func (m *Metrics) RecordSuccess(latency time.Duration) {
	m.totalRequests.Add(1)
	m.successfulRequests.Add(1)
	m.totalLatencyNanos.Add(int64(latency))
	m.lastSuccessUnix.Store(time.Now().UnixNano())
}

// RecordFailure counts a failed request under its error kind.
func (m *Metrics) RecordFailure(kind string) {
	m.totalRequests.Add(1)
	m.failedRequests.Add(1)
	m.lastFailureUnix.Store(time.Now().UnixNano())

	m.mu.Lock()
	m.errorCounts[kind]++
	m.mu.Unlock()
}

// TotalRequests returns the number of attempts.
func (m *Metrics) TotalRequests() int64 { return m.totalRequests.Load() }

// SuccessRate returns successes/attempts, or 1.0 with no attempts.
func (m *Metrics) SuccessRate() float64 {
	total := m.totalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.successfulRequests.Load()) / float64(total)
}

// AverageLatency returns the mean latency of successful requests.
func (m *Metrics) AverageLatency() time.Duration {
	succ := m.successfulRequests.Load()
	if succ == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNanos.Load() / succ)
}

// LastSuccess returns the time of the most recent success, or zero.
func (m *Metrics) LastSuccess() time.Time {
	ns := m.lastSuccessUnix.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LastFailure returns the time of the most recent failure, or zero.
func (m *Metrics) LastFailure() time.Time {
	ns := m.lastFailureUnix.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ErrorCounts returns a copy of the per-error-kind counters.
func (m *Metrics) ErrorCounts() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.errorCounts))
	for k, v := range m.errorCounts {
		out[k] = v
	}
	return out
}
