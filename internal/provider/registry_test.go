package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestRegistry_RegisterIdempotent(t *testing.T) {
	r := NewRegistry(nil)

	f := fakeFactory(newFakeProvider("p"))
	r.Register("p", f)
	r.Register("p", f)

	if len(r.factories) != 1 {
		t.Fatalf("expected one factory, got %d", len(r.factories))
	}
}

func TestRegistry_DiscoverBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	r.Discover()

	for _, name := range []string{"openai", "anthropic", "google", "offline"} {
		if _, ok := r.factories[name]; !ok {
			t.Errorf("builtin %s not discovered", name)
		}
	}
}

func TestRegistry_CreateAndViews(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRegistry(nil)
	healthy := newFakeProvider("healthy")
	sick := newFakeProvider("sick")
	sick.setHealth(StatusUnhealthy)

	r.Register("healthy", fakeFactory(healthy))
	r.Register("sick", fakeFactory(sick))

	ctx := context.Background()
	if _, err := r.Create(ctx, "healthy", Config{ProbePeriod: time.Hour}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := r.Create(ctx, "sick", Config{ProbePeriod: time.Hour}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, ok := r.Get("healthy"); !ok {
		t.Error("get missed stored instance")
	}
	if len(r.All()) != 2 {
		t.Errorf("expected 2 instances, got %d", len(r.All()))
	}

	list := r.Healthy()
	if len(list) != 1 || list[0].Name() != "healthy" {
		t.Errorf("healthy view wrong: %v", list)
	}

	r.Shutdown()
	if len(r.All()) != 0 {
		t.Error("shutdown did not clear the registry")
	}
	if !healthy.closed || !sick.closed {
		t.Error("shutdown did not close providers")
	}
}

func TestRegistry_CreateUnknownProvider(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Create(context.Background(), "nope", Config{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRegistry_CreateFailureLeavesRegistryUnchanged(t *testing.T) {
	r := NewRegistry(nil)

	failing := newFakeProvider("failing")
	failing.initErr = errors.New("bad credentials")
	r.Register("failing", fakeFactory(failing))

	if _, err := r.Create(context.Background(), "failing", Config{}); err == nil {
		t.Fatal("expected initialize error")
	}
	if len(r.All()) != 0 {
		t.Error("failed create left an instance behind")
	}
}

func TestRegistry_InitializeIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	f := newFakeProvider("p")
	r.Register("p", fakeFactory(f))

	inst, err := r.Create(context.Background(), "p", Config{ProbePeriod: time.Hour})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer r.Shutdown()

	// A second Initialize on a ready provider is a no-op for the fake too.
	if err := f.Initialize(context.Background()); err != nil {
		t.Fatalf("re-initialize failed: %v", err)
	}
	if !inst.Ready() {
		t.Error("instance not ready after first successful probe")
	}
}

func TestInstance_ReadyRequiresHealthyProbe(t *testing.T) {
	f := newFakeProvider("p")
	f.setHealth(StatusUnhealthy)

	inst := readyInstance(f)
	if inst.Ready() {
		t.Error("instance became ready without a successful probe")
	}

	// A later healthy probe flips it to ready.
	f.setHealth(StatusHealthy)
	inst.runProbe(context.Background())
	if !inst.Ready() {
		t.Error("instance not ready after healthy probe")
	}
}

func TestInstance_BreakerWiredIntoCalls(t *testing.T) {
	f := newFakeProvider("p")
	f.setTranslate(func(code, s, d string) (string, float64, error) {
		return "", 0, errors.New("remote exploded")
	})

	inst := readyInstance(f)
	ctx := context.Background()

	for i := 0; i < defaultFailureThreshold; i++ {
		inst.Translate(ctx, "x", "Python", "Go", TranslateOptions{})
	}

	// Breaker is now open: the provider function must not run.
	called := false
	f.setTranslate(func(code, s, d string) (string, float64, error) {
		called = true
		return "ok", 1, nil
	})
	_, _, err := inst.Translate(ctx, "x", "Python", "Go", TranslateOptions{})
	if err == nil {
		t.Fatal("expected breaker-open error")
	}
	if called {
		t.Error("open breaker still invoked the provider")
	}

	m := inst.Metrics()
	if m.TotalRequests() == 0 || m.SuccessRate() != 0 {
		t.Errorf("metrics not recording failures: total=%d rate=%f", m.TotalRequests(), m.SuccessRate())
	}
	if m.ErrorCounts()["breaker_open"] == 0 {
		t.Error("breaker_open not counted by kind")
	}
}

// defaultFailureThreshold mirrors the default breaker config.
const defaultFailureThreshold = 5
