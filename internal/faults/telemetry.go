package faults

import (
	"sync"
	"time"
)

// DefaultTelemetryCapacity bounds the fault history ring buffer.
const DefaultTelemetryCapacity = 1000

// Telemetry keeps a bounded history of fault records plus aggregate counts.
// Append with bounded eviction is O(1) under a single lock; the ring buffer
// owns every record it holds.
type Telemetry struct {
	mu             sync.Mutex
	capacity       int
	history        []*Record
	head           int
	size           int
	kindCounts     map[string]int
	categoryCounts map[Category]int
	severityCounts map[Severity]int
}

// Statistics summarizes recorded faults.
type Statistics struct {
	TotalErrors          int              `json:"total_errors"`
	ErrorRate            float64          `json:"error_rate"`
	TopErrors            map[string]int   `json:"top_errors,omitempty"`
	CategoryDistribution map[Category]int `json:"category_distribution,omitempty"`
	SeverityDistribution map[string]int   `json:"severity_distribution,omitempty"`
}

// NewTelemetry creates a telemetry store holding at most capacity records.
func NewTelemetry(capacity int) *Telemetry {
	if capacity <= 0 {
		capacity = DefaultTelemetryCapacity
	}
	return &Telemetry{
		capacity:       capacity,
		history:        make([]*Record, capacity),
		kindCounts:     make(map[string]int),
		categoryCounts: make(map[Category]int),
		severityCounts: make(map[Severity]int),
	}
}

// Record appends a fault, evicting the oldest when full.
func (t *Telemetry) Record(rec *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := (t.head + t.size) % t.capacity
	if t.size == t.capacity {
		t.history[t.head] = rec
		t.head = (t.head + 1) % t.capacity
	} else {
		t.history[idx] = rec
		t.size++
	}

	t.kindCounts[rec.ErrorKind]++
	t.categoryCounts[rec.Category]++
	t.severityCounts[rec.Severity]++
}

// Recent returns up to n of the most recent records, oldest first.
func (t *Telemetry) Recent(n int) []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > t.size {
		n = t.size
	}
	out := make([]*Record, 0, n)
	for i := t.size - n; i < t.size; i++ {
		out = append(out, t.history[(t.head+i)%t.capacity])
	}
	return out
}

// Statistics computes aggregate counts and the error rate over the
// recorded window.
func (t *Telemetry) Statistics() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Statistics{TotalErrors: t.size}
	if t.size == 0 {
		return stats
	}

	oldest := t.history[t.head].Context.Timestamp
	newest := t.history[(t.head+t.size-1)%t.capacity].Context.Timestamp
	window := newest.Sub(oldest)
	if window < time.Second {
		window = time.Second
	}
	stats.ErrorRate = float64(t.size) / window.Seconds()

	stats.TopErrors = make(map[string]int, len(t.kindCounts))
	for k, v := range t.kindCounts {
		stats.TopErrors[k] = v
	}
	stats.CategoryDistribution = make(map[Category]int, len(t.categoryCounts))
	for k, v := range t.categoryCounts {
		stats.CategoryDistribution[k] = v
	}
	stats.SeverityDistribution = make(map[string]int, len(t.severityCounts))
	for k, v := range t.severityCounts {
		stats.SeverityDistribution[k.String()] = v
	}
	return stats
}
