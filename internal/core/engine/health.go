package engine

import (
	"sync"
	"time"

	"github.com/tracklens/tracklens/internal/core"
)

const (
	defaultHealthWindow     = 5 * time.Minute
	defaultHealthMaxSamples = 32

	unhealthyFailureRatio = 0.5
	degradedFailureRatio  = 0.4
)

// HealthMonitor keeps a bounded rolling window of outcomes per provider and
// classifies each provider as healthy, degraded, or unhealthy.
//
// State is partitioned per provider key so concurrent recording for unrelated
// providers never contends on one lock.
type HealthMonitor struct {
	// Window bounds outcomes by age; MaxSamples bounds them by count.
	Window     time.Duration
	MaxSamples int
	Clock      func() time.Time

	mu        sync.RWMutex
	providers map[string]*providerHealth
}

type providerHealth struct {
	mu       sync.Mutex
	outcomes []healthOutcome
}

type healthOutcome struct {
	at      time.Time
	success bool
	latency time.Duration
	reason  core.ProviderErrorKind
}

// NewHealthMonitor returns a monitor with default window bounds.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		Window:     defaultHealthWindow,
		MaxSamples: defaultHealthMaxSamples,
		providers:  make(map[string]*providerHealth),
	}
}

// RecordSuccess appends a successful outcome for the provider.
func (m *HealthMonitor) RecordSuccess(provider string, latency time.Duration) {
	m.record(provider, healthOutcome{at: m.now(), success: true, latency: latency})
}

// RecordFailure appends a failed outcome for the provider.
func (m *HealthMonitor) RecordFailure(provider string, reason core.ProviderErrorKind) {
	m.record(provider, healthOutcome{at: m.now(), reason: reason})
}

// Status classifies the provider from in-window outcomes. Providers that have
// never been tried report healthy: cold starts bias toward optimism.
func (m *HealthMonitor) Status(provider string) core.HealthStatus {
	ph := m.lookup(provider)
	if ph == nil {
		return core.HealthHealthy
	}

	ph.mu.Lock()
	defer ph.mu.Unlock()

	ph.trim(m.now(), m.window(), m.maxSamples())
	total := len(ph.outcomes)
	if total == 0 {
		return core.HealthHealthy
	}

	failures := 0
	for _, o := range ph.outcomes {
		if !o.success {
			failures++
		}
	}

	ratio := float64(failures) / float64(total)
	switch {
	case ratio >= unhealthyFailureRatio:
		return core.HealthUnhealthy
	case ratio >= degradedFailureRatio:
		return core.HealthDegraded
	default:
		return core.HealthHealthy
	}
}

// IsHealthy reports whether the provider should be routed to.
func (m *HealthMonitor) IsHealthy(provider string) bool {
	return m.Status(provider) != core.HealthUnhealthy
}

func (m *HealthMonitor) record(provider string, o healthOutcome) {
	ph := m.getOrCreate(provider)

	ph.mu.Lock()
	ph.outcomes = append(ph.outcomes, o)
	ph.trim(m.now(), m.window(), m.maxSamples())
	ph.mu.Unlock()
}

func (m *HealthMonitor) lookup(provider string) *providerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.providers == nil {
		return nil
	}
	return m.providers[provider]
}

func (m *HealthMonitor) getOrCreate(provider string) *providerHealth {
	if ph := m.lookup(provider); ph != nil {
		return ph
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.providers == nil {
		m.providers = make(map[string]*providerHealth)
	}
	if ph, ok := m.providers[provider]; ok {
		return ph
	}
	ph := &providerHealth{}
	m.providers[provider] = ph
	return ph
}

// trim drops outcomes outside the time window, then the oldest beyond the
// sample cap. Caller holds ph.mu.
func (ph *providerHealth) trim(now time.Time, window time.Duration, maxSamples int) {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(ph.outcomes) && ph.outcomes[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		ph.outcomes = append(ph.outcomes[:0], ph.outcomes[idx:]...)
	}
	if extra := len(ph.outcomes) - maxSamples; extra > 0 {
		ph.outcomes = append(ph.outcomes[:0], ph.outcomes[extra:]...)
	}
}

func (m *HealthMonitor) window() time.Duration {
	if m != nil && m.Window > 0 {
		return m.Window
	}
	return defaultHealthWindow
}

func (m *HealthMonitor) maxSamples() int {
	if m != nil && m.MaxSamples > 0 {
		return m.MaxSamples
	}
	return defaultHealthMaxSamples
}

func (m *HealthMonitor) now() time.Time {
	if m != nil && m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}
