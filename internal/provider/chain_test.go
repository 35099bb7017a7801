package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"polyglot/internal/resilience"
)

func TestChain_FirstHealthySucceeds(t *testing.T) {
	first := readyInstance(newFakeProvider("first"))
	second := readyInstance(newFakeProvider("second"))

	chain := NewChain(first, second)
	text, confidence, used, err := chain.Translate(context.Background(), "x", "Python", "Go", TranslateOptions{}, resilience.PriorityNormal)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if used != "first" {
		t.Errorf("expected first provider, got %s", used)
	}
	if text != "translated by first" || confidence != 0.9 {
		t.Errorf("unexpected result %q / %f", text, confidence)
	}
	if chain.LastSuccessful() != "first" {
		t.Error("last successful not remembered")
	}
}

func TestChain_FallsThroughOnFailure(t *testing.T) {
	broken := newFakeProvider("broken")
	broken.setTranslate(func(code, s, d string) (string, float64, error) {
		return "", 0, errors.New("remote exploded")
	})
	backup := newFakeProvider("backup")

	chain := NewChain(readyInstance(broken), readyInstance(backup))
	_, _, used, err := chain.Translate(context.Background(), "x", "Python", "Go", TranslateOptions{}, resilience.PriorityNormal)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if used != "backup" {
		t.Errorf("expected fallback to backup, got %s", used)
	}
}

func TestChain_SkipsUnhealthy(t *testing.T) {
	sick := newFakeProvider("sick")
	sick.setHealth(StatusUnhealthy)
	sickInst := readyInstance(sick) // stays pending, never ready

	invoked := false
	sick.setTranslate(func(code, s, d string) (string, float64, error) {
		invoked = true
		return "nope", 1, nil
	})

	chain := NewChain(sickInst, readyInstance(newFakeProvider("backup")))
	_, _, used, err := chain.Translate(context.Background(), "x", "Python", "Go", TranslateOptions{}, resilience.PriorityNormal)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if invoked {
		t.Error("unhealthy provider was invoked")
	}
	if used != "backup" {
		t.Errorf("expected backup, got %s", used)
	}
}

func TestChain_AllFailedCarriesEveryFault(t *testing.T) {
	a := newFakeProvider("a")
	a.setTranslate(func(code, s, d string) (string, float64, error) {
		return "", 0, errors.New("a down")
	})
	b := newFakeProvider("b")
	b.setTranslate(func(code, s, d string) (string, float64, error) {
		return "", 0, errors.New("b down")
	})

	chain := NewChain(readyInstance(a), readyInstance(b))
	_, _, _, err := chain.Translate(context.Background(), "x", "Python", "Go", TranslateOptions{}, resilience.PriorityNormal)

	var all *AllFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllFailedError, got %v", err)
	}
	if len(all.Failures) != 2 {
		t.Fatalf("expected 2 recorded failures, got %d", len(all.Failures))
	}
	if all.Failures[0].Provider != "a" || all.Failures[1].Provider != "b" {
		t.Errorf("failure order wrong: %+v", all.Failures)
	}
}

func TestChain_ReturnedResultCameFromSomeProvider(t *testing.T) {
	a := newFakeProvider("a")
	a.setTranslate(func(code, s, d string) (string, float64, error) {
		return "", 0, errors.New("a down")
	})
	b := newFakeProvider("b")
	b.confidence = 0.93

	chain := NewChain(readyInstance(a), readyInstance(b))
	text, confidence, used, err := chain.Translate(context.Background(), "x", "Python", "Go", TranslateOptions{}, resilience.PriorityNormal)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	// The returned pair equals what provider b produced; everything
	// preceding it raised a fault.
	if used != "b" || text != "translated by b" || confidence != 0.93 {
		t.Errorf("result does not match the succeeding provider: %s %q %f", used, text, confidence)
	}
}

func TestChain_ReorderByPerformance(t *testing.T) {
	slow := readyInstance(newFakeProvider("slow"))
	fast := readyInstance(newFakeProvider("fast"))

	// Identical success rates; latency decides.
	slow.Metrics().RecordSuccess(2 * time.Second)
	fast.Metrics().RecordSuccess(10 * time.Millisecond)

	chain := NewChain(slow, fast)
	chain.ReorderByPerformance()

	order := chain.Instances()
	if order[0].Name() != "fast" {
		t.Errorf("expected fast first after reorder, got %s", order[0].Name())
	}
}

func TestChain_ReorderPrefersSuccessRate(t *testing.T) {
	flaky := readyInstance(newFakeProvider("flaky"))
	solid := readyInstance(newFakeProvider("solid"))

	flaky.Metrics().RecordSuccess(10 * time.Millisecond)
	flaky.Metrics().RecordFailure("boom")
	flaky.Metrics().RecordFailure("boom")
	solid.Metrics().RecordSuccess(50 * time.Millisecond)
	solid.Metrics().RecordSuccess(50 * time.Millisecond)

	chain := NewChain(flaky, solid)
	chain.ReorderByPerformance()

	if chain.Instances()[0].Name() != "solid" {
		t.Error("success rate should dominate the composite score")
	}
}

func TestChain_Explain(t *testing.T) {
	chain := NewChain(readyInstance(newFakeProvider("p")))
	text, used, err := chain.Explain(context.Background(), "x", "Python", false, resilience.PriorityNormal)
	if err != nil {
		t.Fatalf("explain failed: %v", err)
	}
	if used != "p" || text != "explained by p" {
		t.Errorf("unexpected result %s %q", used, text)
	}
}
