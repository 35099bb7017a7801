package provider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry owns every provider instance for its lifetime. Registration and
// discovery are serialized; Get/All/Healthy read an atomically swapped
// snapshot map and never take the lock.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances atomic.Value // map[string]*Instance
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
	r.instances.Store(map[string]*Instance{})
	return r
}

// Register adds a factory under name. Registering the same name again
// replaces the earlier factory; the registry is otherwise unchanged.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	r.logger.Debug("registered provider factory", zap.String("provider", name))
}

// BuiltinProviders is the static table of built-in implementations, in the
// order Discover registers them.
var BuiltinProviders = []struct {
	Name    string
	Factory Factory
}{
	{"openai", NewOpenAIProvider},
	{"anthropic", NewAnthropicProvider},
	{"google", NewGoogleProvider},
	{"offline", NewOfflineProvider},
}

// Discover registers the built-in implementation set.
func (r *Registry) Discover() {
	for _, b := range BuiltinProviders {
		r.Register(b.Name, b.Factory)
	}
}

// Create constructs a provider from its factory, initializes it, starts its
// background health probe, and stores the instance by name. Construction
// failure leaves the registry unchanged.
func (r *Registry) Create(ctx context.Context, name string, cfg Config) (*Instance, error) {
	r.mu.Lock()
	factory, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to construct provider %s: %w", name, err)
	}

	inst := newInstance(p, cfg, r.logger)
	if err := inst.initialize(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to initialize provider %s: %w", name, err)
	}
	inst.startProbe(cfg.ProbePeriod)

	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.instances.Load().(map[string]*Instance)
	next := make(map[string]*Instance, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	if old, exists := next[name]; exists {
		go old.stop()
	}
	next[name] = inst
	r.instances.Store(next)

	r.logger.Info("provider created",
		zap.String("provider", name),
		zap.String("status", string(inst.Status())))
	return inst, nil
}

// Get returns the instance stored under name.
func (r *Registry) Get(name string) (*Instance, bool) {
	inst, ok := r.instances.Load().(map[string]*Instance)[name]
	return inst, ok
}

// All returns every stored instance.
func (r *Registry) All() map[string]*Instance {
	current := r.instances.Load().(map[string]*Instance)
	out := make(map[string]*Instance, len(current))
	for k, v := range current {
		out[k] = v
	}
	return out
}

// Healthy returns only instances whose last observed status is healthy.
func (r *Registry) Healthy() []*Instance {
	current := r.instances.Load().(map[string]*Instance)
	var out []*Instance
	for _, inst := range current {
		if inst.Status() == StatusHealthy {
			out = append(out, inst)
		}
	}
	return out
}

// Shutdown stops every health probe, closes every provider, and clears the
// instance map.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	current := r.instances.Load().(map[string]*Instance)
	r.instances.Store(map[string]*Instance{})
	r.mu.Unlock()

	for name, inst := range current {
		if err := inst.stop(); err != nil {
			r.logger.Warn("provider shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}
}
