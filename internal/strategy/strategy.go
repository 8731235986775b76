// Package strategy decides which provider(s) to offer for a service and how
// to redirect: immediate auto-redirect, a selection page, or denial.
//
// Strategies stack in an ordered chain with first-match-wins semantics; a
// configured override always runs before the default. Strategies are pure:
// they read the service context and request attributes, never the pending
// authentication state.
package strategy

import (
	"context"
	"net/url"
	"strings"

	"github.com/davidcastane/delega/internal/policy"
	"github.com/davidcastane/delega/internal/provider"
)

// ServiceContext is the per-request view of the service asking for
// delegation. Transient; never persisted.
type ServiceContext struct {
	ServiceID string
	// RequestedProviders restricts the candidate set. Empty, or containing
	// "any", means every registered provider is a candidate.
	RequestedProviders []string
}

// WantsAny reports whether the request restricts the provider set.
func (s ServiceContext) WantsAny() bool {
	if len(s.RequestedProviders) == 0 {
		return true
	}
	for _, p := range s.RequestedProviders {
		if strings.EqualFold(p, "any") {
			return true
		}
	}
	return false
}

// DecisionKind enumerates the redirection outcomes.
type DecisionKind int

const (
	// KindNone is the zero decision: the strategy has no opinion and the
	// chain moves on.
	KindNone DecisionKind = iota
	KindAutoRedirect
	KindPresentChoices
	KindDeny
)

// Decision is the outcome of a strategy evaluation.
type Decision struct {
	Kind      DecisionKind
	Provider  string   // KindAutoRedirect
	Providers []string // KindPresentChoices, in offer order
	Reason    string   // KindDeny
}

// IsZero reports whether the strategy abstained.
func (d Decision) IsZero() bool { return d.Kind == KindNone }

// AutoRedirect builds an immediate-redirect decision.
func AutoRedirect(provider string) Decision {
	return Decision{Kind: KindAutoRedirect, Provider: provider}
}

// PresentChoices builds a selection-page decision.
func PresentChoices(providers []string) Decision {
	return Decision{Kind: KindPresentChoices, Providers: providers}
}

// Deny builds a denial decision.
func Deny(reason string) Decision {
	return Decision{Kind: KindDeny, Reason: reason}
}

// Strategy selects providers for a service. Returning the zero Decision
// passes the question to the next strategy in the chain.
type Strategy interface {
	Select(ctx context.Context, svc ServiceContext, attrs url.Values) (Decision, error)
}

// Chain evaluates strategies in order; the first non-zero decision wins.
type Chain struct {
	strategies []Strategy
}

// NewChain builds a chain. Overrides go before the default strategy.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Select runs the chain. If every strategy abstains, the result is a denial:
// nobody decided how to authenticate, so we fail closed.
func (c *Chain) Select(ctx context.Context, svc ServiceContext, attrs url.Values) (Decision, error) {
	for _, s := range c.strategies {
		d, err := s.Select(ctx, svc, attrs)
		if err != nil {
			return Decision{}, err
		}
		if !d.IsZero() {
			return d, nil
		}
	}
	return Deny("no redirection strategy produced a decision"), nil
}

// Default is the standard strategy: among the enabled providers permitted for
// the service, one candidate auto-redirects, several present choices in
// registration order, none denies.
type Default struct {
	Registry *provider.Registry
	Enforcer *policy.Enforcer
}

// Select implements Strategy.
func (d *Default) Select(ctx context.Context, svc ServiceContext, _ url.Values) (Decision, error) {
	var candidates []string
	for _, c := range d.Registry.Enabled() {
		name := c.Descriptor().Name
		if svc.WantsAny() || containsFold(svc.RequestedProviders, name) {
			candidates = append(candidates, name)
		}
	}

	permitted, err := d.Enforcer.FilterProviders(ctx, svc.ServiceID, candidates)
	if err != nil {
		return Decision{}, err
	}

	switch len(permitted) {
	case 0:
		return Deny("no identity provider is permitted for this service"), nil
	case 1:
		return AutoRedirect(permitted[0]), nil
	default:
		return PresentChoices(permitted), nil
	}
}

// Disabled always denies. Used when the delegated-authentication feature is
// switched off but the surface must stay wired.
type Disabled struct {
	Reason string
}

// Select implements Strategy.
func (d *Disabled) Select(context.Context, ServiceContext, url.Values) (Decision, error) {
	reason := d.Reason
	if reason == "" {
		reason = "delegated authentication is disabled"
	}
	return Deny(reason), nil
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
