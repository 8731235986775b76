// Package policy decides whether a service may use delegated authentication,
// and with which providers. The Enforcer never caches: both enforcement
// points (before the redirect and after the callback) fetch fresh policy, so
// a revocation during the round trip is honored.
package policy

import (
	"context"
	"errors"
	"strings"
)

// ServicePolicy is the delegation policy of one registered service.
type ServicePolicy struct {
	ServiceID         string
	DelegationEnabled bool
	// AllowedProviders empty means any registered provider.
	AllowedProviders []string
}

// AllowsProvider reports whether the policy permits the named provider.
func (p *ServicePolicy) AllowsProvider(name string) bool {
	if len(p.AllowedProviders) == 0 {
		return true
	}
	for _, allowed := range p.AllowedProviders {
		if strings.EqualFold(allowed, name) {
			return true
		}
	}
	return false
}

// ErrServiceNotFound indica que el service no está registrado.
var ErrServiceNotFound = errors.New("policy: service not registered")

// Lookup resolves the current policy for a service. Implementations must not
// cache across calls; freshness is part of the contract.
type Lookup interface {
	Policy(ctx context.Context, serviceID string) (*ServicePolicy, error)
}

// Enforcer evaluates delegation policy. Unknown services and lookup failures
// deny (fail closed).
type Enforcer struct {
	lookup Lookup
}

// NewEnforcer creates an Enforcer over the given lookup.
func NewEnforcer(lookup Lookup) *Enforcer {
	return &Enforcer{lookup: lookup}
}

// IsServiceAuthorized reports whether the service may use delegated
// authentication at all.
func (e *Enforcer) IsServiceAuthorized(ctx context.Context, serviceID string) (bool, error) {
	p, err := e.lookup.Policy(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.DelegationEnabled, nil
}

// IsProviderAuthorized reports whether the named provider is permitted for
// the service.
func (e *Enforcer) IsProviderAuthorized(ctx context.Context, serviceID, providerName string) (bool, error) {
	p, err := e.lookup.Policy(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.DelegationEnabled && p.AllowsProvider(providerName), nil
}

// FilterProviders keeps the names permitted for the service, preserving order.
func (e *Enforcer) FilterProviders(ctx context.Context, serviceID string, names []string) ([]string, error) {
	p, err := e.lookup.Policy(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !p.DelegationEnabled {
		return nil, nil
	}
	var out []string
	for _, n := range names {
		if p.AllowsProvider(n) {
			out = append(out, n)
		}
	}
	return out, nil
}
