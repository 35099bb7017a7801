package provider

import (
	"testing"
	"time"
)

func TestBalancer_RoundRobin(t *testing.T) {
	a := readyInstance(newFakeProvider("a"))
	b := readyInstance(newFakeProvider("b"))

	lb := NewBalancer(StrategyRoundRobin, a, b)

	got := []string{lb.Select().Name(), lb.Select().Name(), lb.Select().Name(), lb.Select().Name()}
	want := []string{"a", "b", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("round robin order wrong: got %v", got)
		}
	}
}

func TestBalancer_ExcludesUnhealthy(t *testing.T) {
	sick := newFakeProvider("sick")
	sickInst := readyInstance(sick)
	sick.setHealth(StatusUnhealthy)
	sickInst.runProbe(t.Context())

	ok := readyInstance(newFakeProvider("ok"))

	lb := NewBalancer(StrategyRoundRobin, sickInst, ok)
	for i := 0; i < 4; i++ {
		if inst := lb.Select(); inst == nil || inst.Name() != "ok" {
			t.Fatalf("selection %d routed to an unhealthy instance", i)
		}
	}
}

func TestBalancer_NoUsableInstances(t *testing.T) {
	sick := newFakeProvider("sick")
	sickInst := readyInstance(sick)
	sick.setHealth(StatusUnhealthy)
	sickInst.runProbe(t.Context())

	lb := NewBalancer(StrategyRoundRobin, sickInst)
	if lb.Select() != nil {
		t.Error("expected nil when the pool is empty")
	}
}

func TestBalancer_LeastLoaded(t *testing.T) {
	busy := readyInstance(newFakeProvider("busy"))
	idle := readyInstance(newFakeProvider("idle"))

	busy.Metrics().RecordSuccess(time.Millisecond)
	busy.Metrics().RecordSuccess(time.Millisecond)

	lb := NewBalancer(StrategyLeastLoaded, busy, idle)
	if got := lb.Select().Name(); got != "idle" {
		t.Errorf("expected idle, got %s", got)
	}
}

func TestBalancer_BestPerformance(t *testing.T) {
	flaky := readyInstance(newFakeProvider("flaky"))
	solid := readyInstance(newFakeProvider("solid"))

	flaky.Metrics().RecordSuccess(time.Millisecond)
	flaky.Metrics().RecordFailure("boom")
	solid.Metrics().RecordSuccess(time.Millisecond)

	lb := NewBalancer(StrategyBestPerformance, flaky, solid)
	if got := lb.Select().Name(); got != "solid" {
		t.Errorf("expected solid, got %s", got)
	}
}
