package resilience

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket with a steady refill rate and a burst
// capacity. The token level stays within [0, burst]; timing uses the
// monotonic clock carried by time.Time.
type RateLimiter struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      float64
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a full bucket refilling at rate tokens/s with the
// given burst capacity.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rate:       rate,
		burst:      float64(burst),
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Acquire debits k tokens. When the bucket holds fewer than k tokens and
// blocking is true, the caller sleeps for the refill deficit and the bucket
// is drained to zero; when blocking is false it returns false immediately.
func (r *RateLimiter) Acquire(k int, blocking bool) bool {
	need := float64(k)

	r.mu.Lock()
	r.refill()

	if r.tokens >= need {
		r.tokens -= need
		r.mu.Unlock()
		return true
	}

	if !blocking {
		r.mu.Unlock()
		return false
	}

	wait := time.Duration((need - r.tokens) / r.rate * float64(time.Second))
	r.tokens = 0
	r.mu.Unlock()

	time.Sleep(wait)
	return true
}

// Tokens returns the current token level after refill.
func (r *RateLimiter) Tokens() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// refill credits tokens for elapsed time, clamped to burst.
// Caller holds the lock.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens += elapsed * r.rate
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
}
