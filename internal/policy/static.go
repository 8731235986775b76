package policy

import (
	"context"
	"sync"

	"github.com/davidcastane/delega/internal/config"
)

// StaticLookup sirve políticas desde la configuración. Replace permite
// swapearlas en caliente (reload de config), manteniendo la frescura del
// contrato: cada Policy lee el snapshot vigente.
type StaticLookup struct {
	mu       sync.RWMutex
	policies map[string]ServicePolicy
}

// NewStaticLookup builds a lookup from config service policies.
func NewStaticLookup(services []config.ServicePolicy) *StaticLookup {
	l := &StaticLookup{}
	l.Replace(services)
	return l
}

// Replace swaps the whole policy set.
func (l *StaticLookup) Replace(services []config.ServicePolicy) {
	m := make(map[string]ServicePolicy, len(services))
	for _, s := range services {
		m[s.Service] = ServicePolicy{
			ServiceID:         s.Service,
			DelegationEnabled: s.DelegationEnabled,
			AllowedProviders:  append([]string(nil), s.AllowedProviders...),
		}
	}
	l.mu.Lock()
	l.policies = m
	l.mu.Unlock()
}

// Policy returns the current policy for the service.
func (l *StaticLookup) Policy(_ context.Context, serviceID string) (*ServicePolicy, error) {
	l.mu.RLock()
	p, ok := l.policies[serviceID]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrServiceNotFound
	}
	cp := p
	return &cp, nil
}
