package faults

import (
	"sync"
	"time"
)

// DegradedFeature records why a feature was degraded and what replaces it.
type DegradedFeature struct {
	Reason      string
	Alternative string
	DegradedAt  time.Time
}

// Degradation tracks features running in degraded mode so callers can route
// to an alternative instead of failing outright.
type Degradation struct {
	mu       sync.Mutex
	features map[string]DegradedFeature
}

// NewDegradation creates an empty degradation registry.
func NewDegradation() *Degradation {
	return &Degradation{features: make(map[string]DegradedFeature)}
}

// Degrade marks a feature as degraded with a reason and an optional
// alternative feature name.
func (d *Degradation) Degrade(feature, reason, alternative string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.features[feature] = DegradedFeature{
		Reason:      reason,
		Alternative: alternative,
		DegradedAt:  time.Now(),
	}
}

// Restore clears a feature's degraded state.
func (d *Degradation) Restore(feature string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.features, feature)
}

// IsDegraded reports whether a feature is currently degraded.
func (d *Degradation) IsDegraded(feature string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.features[feature]
	return ok
}

// Alternative returns the configured alternative for a degraded feature,
// or empty when the feature is healthy or has no alternative.
func (d *Degradation) Alternative(feature string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.features[feature].Alternative
}

// WithFallback invokes primary, or fallback when the feature is degraded
// and a fallback is provided.
func (d *Degradation) WithFallback(feature string, primary, fallback func() error) error {
	if d.IsDegraded(feature) && fallback != nil {
		return fallback()
	}
	return primary()
}
