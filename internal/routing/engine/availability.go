package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"signalhub/internal/domain"
	"signalhub/internal/provider"
)

// AvailabilityProber reports whether a model tier's provider is currently
// usable, backed by one circuit breaker per tier: a provider in a
// failing state is treated as unavailable without re-probing it on every
// query; the breaker trips after a run of consecutive failures and
// half-opens after a cool-down to test recovery.
type AvailabilityProber struct {
	providers map[domain.ModelTier]provider.Provider

	mu       sync.Mutex
	breakers map[domain.ModelTier]*gobreaker.CircuitBreaker
}

// NewAvailabilityProber builds a prober over the given per-tier providers.
func NewAvailabilityProber(providers map[domain.ModelTier]provider.Provider) *AvailabilityProber {
	return &AvailabilityProber{
		providers: providers,
		breakers:  make(map[domain.ModelTier]*gobreaker.CircuitBreaker),
	}
}

var errProviderUnavailable = errors.New("provider unavailable")

func (a *AvailabilityProber) breakerFor(tier domain.ModelTier) *gobreaker.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cb, ok := a.breakers[tier]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(tier),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	a.breakers[tier] = cb
	return cb
}

// Available probes tier's provider through its circuit breaker. Probe
// errors (including the breaker itself being open) are treated as
// "unavailable" per the Routing Engine's failure semantics.
func (a *AvailabilityProber) Available(_ context.Context, tier domain.ModelTier) bool {
	p, ok := a.providers[tier]
	if !ok {
		return false
	}

	cb := a.breakerFor(tier)
	_, err := cb.Execute(func() (any, error) {
		if !p.Available(context.Background()) {
			return nil, errProviderUnavailable
		}
		return nil, nil
	})
	return err == nil
}

// Provider returns the provider registered for tier, if any.
func (a *AvailabilityProber) Provider(tier domain.ModelTier) (provider.Provider, bool) {
	p, ok := a.providers[tier]
	return p, ok
}
