package provider

import (
	"context"
	"sync"
	"sync/atomic"
)

// fakeProvider is a scriptable provider for dispatch tests.
type fakeProvider struct {
	name       string
	confidence float64
	initCount  atomic.Int32
	initErr    error

	mu          sync.Mutex
	health      Status
	translateFn func(code, sourceLang, targetLang string) (string, float64, error)
	closed      bool
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:       name,
		confidence: 0.9,
		health:     StatusHealthy,
	}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Initialize(ctx context.Context) error {
	f.initCount.Add(1)
	return f.initErr
}

func (f *fakeProvider) Translate(ctx context.Context, code, sourceLang, targetLang string, opts TranslateOptions) (string, float64, error) {
	f.mu.Lock()
	fn := f.translateFn
	f.mu.Unlock()
	if fn != nil {
		return fn(code, sourceLang, targetLang)
	}
	return "translated by " + f.name, f.confidence, nil
}

func (f *fakeProvider) Explain(ctx context.Context, code, language string, lineByLine bool) (string, error) {
	return "explained by " + f.name, nil
}

func (f *fakeProvider) HealthProbe(ctx context.Context) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *fakeProvider) setHealth(s Status) {
	f.mu.Lock()
	f.health = s
	f.mu.Unlock()
}

func (f *fakeProvider) setTranslate(fn func(code, sourceLang, targetLang string) (string, float64, error)) {
	f.mu.Lock()
	f.translateFn = fn
	f.mu.Unlock()
}

func (f *fakeProvider) Capabilities() Capabilities {
	return Capabilities{SupportedModels: []string{"fake-1"}, MaxTokens: 1000}
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// readyInstance wraps a fake provider in an initialized, probed instance.
func readyInstance(f *fakeProvider) *Instance {
	inst := newInstance(f, Config{RatePerSecond: 1000, Burst: 1000}, nil)
	inst.initialize(context.Background())
	return inst
}

func fakeFactory(f *fakeProvider) Factory {
	return func(cfg Config) (Provider, error) { return f, nil }
}
