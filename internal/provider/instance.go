package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"polyglot/internal/resilience"
)

// DefaultProbePeriod is the background health probe interval.
const DefaultProbePeriod = 60 * time.Second

// probeTimeout bounds a single health probe call.
const probeTimeout = 10 * time.Second

// Instance is a live provider wrapped in its own resilience primitives.
// Each instance exclusively owns its breaker and bucket; metrics use atomic
// counters. Every operation runs through the breaker and the bucket.
type Instance struct {
	provider Provider
	breaker  *resilience.Breaker
	limiter  *resilience.RateLimiter
	metrics  *Metrics
	logger   *zap.Logger

	mu             sync.Mutex
	initState      InitState
	status         Status
	statusSeq      uint64 // guards against a stale probe overwriting a newer result
	unhealthySince time.Time

	probeOnce   sync.Once
	probeCancel context.CancelFunc
	probeDone   chan struct{}
}

func newInstance(p Provider, cfg Config, logger *zap.Logger) *Instance {
	rate := cfg.RatePerSecond
	if rate <= 0 {
		rate = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instance{
		provider: p,
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerConfig()),
		limiter:  resilience.NewRateLimiter(rate, burst),
		metrics:  NewMetrics(),
		logger:   logger,
		status:   StatusUnknown,
	}
}

// Name returns the provider name.
func (i *Instance) Name() string { return i.provider.Name() }

// Metrics returns the instance's metrics block.
func (i *Instance) Metrics() *Metrics { return i.metrics }

// Breaker returns the instance's circuit breaker.
func (i *Instance) Breaker() *resilience.Breaker { return i.breaker }

// Capabilities returns the provider's capability record.
func (i *Instance) Capabilities() Capabilities { return i.provider.Capabilities() }

// Status returns the last observed health status.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// InitState returns the initialization state.
func (i *Instance) InitState() InitState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.initState
}

// Ready reports whether dispatch may route to this instance: initialized
// and confirmed by at least one successful health probe.
func (i *Instance) Ready() bool {
	return i.InitState() == InitReady
}

// UnhealthyFor returns how long the instance has been continuously
// unhealthy, or zero. Instances unhealthy longer than the breaker recovery
// timeout are eligible to be drained from load-balanced pools.
func (i *Instance) UnhealthyFor() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusUnhealthy || i.unhealthySince.IsZero() {
		return 0
	}
	return time.Since(i.unhealthySince)
}

// Translate runs the provider's translate operation through the instance's
// bucket and breaker, recording metrics.
func (i *Instance) Translate(ctx context.Context, code, sourceLang, targetLang string, opts TranslateOptions) (string, float64, error) {
	var text string
	var confidence float64
	err := i.execute(ctx, func(ctx context.Context) error {
		var opErr error
		text, confidence, opErr = i.provider.Translate(ctx, code, sourceLang, targetLang, opts)
		return opErr
	})
	if err != nil {
		return "", 0, err
	}
	return text, confidence, nil
}

// Explain runs the provider's explain operation through the instance's
// bucket and breaker, recording metrics.
func (i *Instance) Explain(ctx context.Context, code, language string, lineByLine bool) (string, error) {
	var text string
	err := i.execute(ctx, func(ctx context.Context) error {
		var opErr error
		text, opErr = i.provider.Explain(ctx, code, language, lineByLine)
		return opErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// execute wraps one operation in rate limiting, the circuit breaker, and
// metrics collection, in that order.
func (i *Instance) execute(ctx context.Context, op func(context.Context) error) error {
	i.limiter.Acquire(1, true)

	start := time.Now()
	err := i.breaker.Call(func() error { return op(ctx) })
	if err != nil {
		i.metrics.RecordFailure(errKind(err))
		return err
	}
	i.metrics.RecordSuccess(time.Since(start))
	return nil
}

// initialize runs the provider's one-shot initialization and the first
// health probe. The instance becomes ready only after that probe succeeds;
// until then the background probe keeps trying.
func (i *Instance) initialize(ctx context.Context) error {
	if err := i.provider.Initialize(ctx); err != nil {
		i.mu.Lock()
		i.initState = InitFailed
		i.mu.Unlock()
		return err
	}
	i.runProbe(ctx)
	return nil
}

// startProbe launches the background health probe at the given period.
func (i *Instance) startProbe(period time.Duration) {
	if period <= 0 {
		period = DefaultProbePeriod
	}
	i.probeOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		i.probeCancel = cancel
		i.probeDone = make(chan struct{})

		go func() {
			defer close(i.probeDone)
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					i.runProbe(ctx)
				}
			}
		}()
	})
}

// runProbe executes one health probe and records its result. A sequence
// number keeps a slow probe from overwriting a newer result.
func (i *Instance) runProbe(ctx context.Context) {
	i.mu.Lock()
	seq := i.statusSeq + 1
	i.statusSeq = seq
	i.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	status := i.provider.HealthProbe(probeCtx)
	cancel()

	i.mu.Lock()
	defer i.mu.Unlock()
	if seq != i.statusSeq {
		return // a newer probe already reported
	}

	prev := i.status
	i.status = status

	switch status {
	case StatusUnhealthy:
		if prev != StatusUnhealthy {
			i.unhealthySince = time.Now()
		}
	default:
		i.unhealthySince = time.Time{}
	}

	if status == StatusHealthy && i.initState == InitPending {
		i.initState = InitReady
	}
	if prev != status {
		i.logger.Info("provider health changed",
			zap.String("provider", i.provider.Name()),
			zap.String("from", string(prev)),
			zap.String("to", string(status)))
	}
}

// stop cancels the background probe and closes the provider.
func (i *Instance) stop() error {
	if i.probeCancel != nil {
		i.probeCancel()
		<-i.probeDone
	}
	return i.provider.Close()
}

// errKind derives the metrics key for an error.
func errKind(err error) string {
	switch {
	case errors.Is(err, resilience.ErrBreakerOpen):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, ':'); i > 0 && i < 40 {
		return msg[:i]
	}
	if len(msg) > 40 {
		return msg[:40]
	}
	return msg
}
