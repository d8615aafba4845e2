// Package routing handles provider selection and failover.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: round-robin implementation with a circuit breaker
//   - Retry: retry logic with exponential backoff and failover
package routing

import (
	"sync"
	"time"

	"github.com/vietddude/optionvault/internal/infra/rpc/provider"
)

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider
	AddProvider(p provider.Provider)

	// Candidates returns usable providers in the order they should be tried
	Candidates() []provider.Provider

	// GetAllProviders returns all providers
	GetAllProviders() []provider.Provider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)
}

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpen      bool
}

// DefaultRouter rotates the starting provider on each call and skips
// providers whose circuit is open until the cooldown passes.
type DefaultRouter struct {
	mu             sync.RWMutex
	providers      []provider.Provider
	providerHealth map[string]*providerMetrics
	next           int

	failThreshold int
	cooldown      time.Duration
	now           func() time.Time
}

// NewRouter creates a new round-robin router.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		providerHealth: make(map[string]*providerMetrics),
		failThreshold:  5,
		cooldown:       30 * time.Second,
		now:            time.Now,
	}
}

// AddProvider registers a provider.
func (r *DefaultRouter) AddProvider(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	r.providerHealth[p.GetName()] = &providerMetrics{
		lastSuccessAt: r.now(),
	}
}

// Candidates returns healthy providers starting from the next in rotation.
// When every provider is unhealthy all of them are returned so callers
// still get an answer.
func (r *DefaultRouter) Candidates() []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.providers)
	if n == 0 {
		return nil
	}
	start := r.next % n
	r.next++

	ordered := make([]provider.Provider, 0, n)
	for i := range n {
		ordered = append(ordered, r.providers[(start+i)%n])
	}

	var healthy []provider.Provider
	for _, p := range ordered {
		if r.usableLocked(p) {
			healthy = append(healthy, p)
		}
	}
	if len(healthy) == 0 {
		return ordered
	}
	return healthy
}

func (r *DefaultRouter) usableLocked(p provider.Provider) bool {
	if !p.IsAvailable() {
		return false
	}
	m := r.providerHealth[p.GetName()]
	if m == nil || !m.circuitOpen {
		return true
	}
	// Half-open after cooldown.
	return r.now().Sub(m.lastFailureAt) >= r.cooldown
}

// GetAllProviders returns all providers.
func (r *DefaultRouter) GetAllProviders() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]provider.Provider, len(r.providers))
	copy(result, r.providers)
	return result
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.successCount++
	metrics.totalLatency += latency
	metrics.lastSuccessAt = r.now()
	metrics.consecutiveFails = 0
	metrics.circuitOpen = false
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.failureCount++
	metrics.lastFailureAt = r.now()
	metrics.consecutiveFails++

	if metrics.consecutiveFails >= r.failThreshold {
		metrics.circuitOpen = true
	}
}

// CircuitOpen reports whether calls to a provider are currently suspended.
func (r *DefaultRouter) CircuitOpen(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.providerHealth[providerName]
	return ok && m.circuitOpen
}
