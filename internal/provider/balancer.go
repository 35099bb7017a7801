package provider

import (
	"sync"
)

// Strategy selects how the load balancer routes among equals.
type Strategy string

const (
	StrategyRoundRobin      Strategy = "round_robin"
	StrategyLeastLoaded     Strategy = "least_loaded"
	StrategyBestPerformance Strategy = "best_performance"
)

// Balancer distributes calls across a pool of providers. The chain is for
// fallback correctness; the balancer routes among several good providers,
// one pick per call. Selection excludes unhealthy instances, which drains
// persistently unhealthy providers from the pool.
type Balancer struct {
	mu        sync.Mutex
	instances []*Instance
	strategy  Strategy
	index     int
}

// NewBalancer builds a balancer over the pool with the given strategy.
func NewBalancer(strategy Strategy, instances ...*Instance) *Balancer {
	return &Balancer{
		instances: append([]*Instance(nil), instances...),
		strategy:  strategy,
	}
}

// Select picks the next provider, or nil when no instance is usable.
func (b *Balancer) Select() *Instance {
	b.mu.Lock()
	defer b.mu.Unlock()

	var pool []*Instance
	for _, inst := range b.instances {
		if inst.Ready() && inst.Status() != StatusUnhealthy {
			pool = append(pool, inst)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	switch b.strategy {
	case StrategyLeastLoaded:
		return leastLoaded(pool)
	case StrategyBestPerformance:
		return bestPerformance(pool)
	default:
		inst := pool[b.index%len(pool)]
		b.index++
		return inst
	}
}

func leastLoaded(pool []*Instance) *Instance {
	best := pool[0]
	for _, inst := range pool[1:] {
		if inst.Metrics().TotalRequests() < best.Metrics().TotalRequests() {
			best = inst
		}
	}
	return best
}

func bestPerformance(pool []*Instance) *Instance {
	score := func(inst *Instance) float64 {
		m := inst.Metrics()
		return m.SuccessRate() - m.AverageLatency().Seconds()/10.0
	}
	best := pool[0]
	bestScore := score(best)
	for _, inst := range pool[1:] {
		if s := score(inst); s > bestScore {
			best, bestScore = inst, s
		}
	}
	return best
}
