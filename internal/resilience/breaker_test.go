package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 5})

	// Each of the first 5 calls surfaces the underlying fault.
	for i := 0; i < 5; i++ {
		if err := b.Call(failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected underlying error, got %v", i+1, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}

	// The 6th call is rejected without invoking the function.
	invoked := false
	err := b.Call(func() error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if invoked {
		t.Fatal("open breaker invoked the underlying call")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3})

	b.Call(failing)
	b.Call(failing)
	b.Call(succeeding)
	b.Call(failing)
	b.Call(failing)

	if b.State() != StateClosed {
		t.Fatalf("expected closed (success reset the counter), got %s", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  20 * time.Millisecond,
		SuccessThreshold: 2,
	})

	b.Call(failing)
	b.Call(failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(30 * time.Millisecond)

	// After the recovery timeout a probe is admitted.
	if err := b.Call(succeeding); err != nil {
		t.Fatalf("probe rejected after recovery timeout: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	if err := b.Call(succeeding); err != nil {
		t.Fatalf("second probe rejected: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after success threshold, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	b.Call(failing)
	time.Sleep(20 * time.Millisecond)

	if err := b.Call(failing); !errors.Is(err, errBoom) {
		t.Fatalf("expected probe to run and fail, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected reopened, got %s", b.State())
	}
}

func TestBreaker_StateStableWithoutEvents(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())
	before := b.State()
	time.Sleep(10 * time.Millisecond)
	if b.State() != before {
		t.Fatal("state changed without a transition event")
	}
}
