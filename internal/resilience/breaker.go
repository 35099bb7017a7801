// Package resilience provides the fault-tolerance primitives wrapped around
// every provider call: circuit breaker, token-bucket rate limiter, and a
// prioritized request queue.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's operating mode.
type BreakerState int

const (
	// StateClosed admits every call.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls.
	StateHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrBreakerOpen is returned when the breaker rejects a call without
// invoking the underlying function.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold    int           // consecutive failures before opening
	RecoveryTimeout     time.Duration // cooldown before probing recovery
	SuccessThreshold    int           // probe successes before re-closing
	HalfOpenMaxRequests int           // concurrent probes admitted while half-open
}

// DefaultBreakerConfig returns the standard thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		RecoveryTimeout:     60 * time.Second,
		SuccessThreshold:    2,
		HalfOpenMaxRequests: 3,
	}
}

// Breaker short-circuits calls to a failing dependency. All state is
// serialized on a single mutex; timing uses the monotonic clock carried by
// time.Time.
type Breaker struct {
	mu               sync.Mutex
	config           BreakerConfig
	state            BreakerState
	failureCount     int
	successCount     int
	lastFailure      time.Time
	halfOpenRequests int
}

// NewBreaker creates a breaker, filling zero config fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return &Breaker{config: cfg, state: StateClosed}
}

// Call executes fn through the breaker, returning its error or
// ErrBreakerOpen when the call is rejected.
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	if !b.canExecute() {
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	if b.state == StateHalfOpen {
		b.halfOpenRequests++
	}
	b.mu.Unlock()

	err := fn()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// canExecute decides admission and performs the OPEN→HALF_OPEN transition
// when the recovery timeout has elapsed. Caller holds the lock.
func (b *Breaker) canExecute() bool {
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if !b.lastFailure.IsZero() && time.Since(b.lastFailure) > b.config.RecoveryTimeout {
			b.state = StateHalfOpen
			b.halfOpenRequests = 0
			b.successCount = 0
			return true
		}
		return false
	default: // half-open
		return b.halfOpenRequests < b.config.HalfOpenMaxRequests
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successCount = 0
	}
}
