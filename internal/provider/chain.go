package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"polyglot/internal/resilience"
)

// Failure records one candidate's fault during a chain execution.
type Failure struct {
	Provider string
	Err      error
}

// AllFailedError is raised when every candidate in the chain failed. It
// carries the per-candidate fault list.
type AllFailedError struct {
	Failures []Failure
}

func (e *AllFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "all providers failed: no healthy providers available"
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Provider, f.Err)
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Chain tries providers in order until one succeeds. It is the
// correctness-critical fallback path: an answer must eventually come back.
type Chain struct {
	mu             sync.Mutex
	instances      []*Instance
	lastSuccessful string
}

// NewChain builds a chain over the given instances, tried in order.
func NewChain(instances ...*Instance) *Chain {
	return &Chain{instances: append([]*Instance(nil), instances...)}
}

// Instances returns the current attempt order.
func (c *Chain) Instances() []*Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Instance(nil), c.instances...)
}

// LastSuccessful returns the name of the most recently successful provider.
func (c *Chain) LastSuccessful() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccessful
}

// Translate walks the chain: candidates that are not ready and healthy are
// skipped, each attempt runs through the candidate's breaker and bucket, and
// the first success wins. The priority is accepted but not used; ordering
// within the chain is unaffected. Returns the translated
// text, confidence, and the name of the provider that produced it.
func (c *Chain) Translate(ctx context.Context, code, sourceLang, targetLang string, opts TranslateOptions, priority resilience.Priority) (string, float64, string, error) {
	var failures []Failure

	for _, inst := range c.Instances() {
		if !inst.Ready() || inst.Status() != StatusHealthy {
			continue
		}

		text, confidence, err := inst.Translate(ctx, code, sourceLang, targetLang, opts)
		if err != nil {
			failures = append(failures, Failure{Provider: inst.Name(), Err: err})
			continue
		}

		c.mu.Lock()
		c.lastSuccessful = inst.Name()
		c.mu.Unlock()
		return text, confidence, inst.Name(), nil
	}

	return "", 0, "", &AllFailedError{Failures: failures}
}

// Explain walks the chain for the explanation operation.
func (c *Chain) Explain(ctx context.Context, code, language string, lineByLine bool, priority resilience.Priority) (string, string, error) {
	var failures []Failure

	for _, inst := range c.Instances() {
		if !inst.Ready() || inst.Status() != StatusHealthy {
			continue
		}

		text, err := inst.Explain(ctx, code, language, lineByLine)
		if err != nil {
			failures = append(failures, Failure{Provider: inst.Name(), Err: err})
			continue
		}

		c.mu.Lock()
		c.lastSuccessful = inst.Name()
		c.mu.Unlock()
		return text, inst.Name(), nil
	}

	return "", "", &AllFailedError{Failures: failures}
}

// ReorderByPerformance sorts the chain by composite score:
// 0.7·success_rate + 0.3·latency_score with latency_score = 1/(1+avg_latency).
// Ties preserve the prior order.
func (c *Chain) ReorderByPerformance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	score := func(inst *Instance) float64 {
		m := inst.Metrics()
		latencySeconds := m.AverageLatency().Seconds()
		latencyScore := 1.0
		if latencySeconds > 0 {
			latencyScore = 1.0 / (1.0 + latencySeconds)
		}
		return 0.7*m.SuccessRate() + 0.3*latencyScore
	}

	sort.SliceStable(c.instances, func(i, j int) bool {
		return score(c.instances[i]) > score(c.instances[j])
	})
}
