package strategy

import (
	"context"
	"net/url"
	"sync/atomic"

	"github.com/davidcastane/delega/internal/observability/logger"
)

// Swappable holds the active strategy behind an atomic pointer so the
// implementation can be re-resolved at runtime (config reload, SIGHUP)
// without stopping in-flight requests.
type Swappable struct {
	active  atomic.Pointer[Strategy]
	resolve func() Strategy
}

// NewSwappable resolves the initial strategy and keeps the resolver for
// later reloads.
func NewSwappable(resolve func() Strategy) *Swappable {
	s := &Swappable{resolve: resolve}
	initial := resolve()
	s.active.Store(&initial)
	return s
}

// Select delegates to the currently active strategy.
func (s *Swappable) Select(ctx context.Context, svc ServiceContext, attrs url.Values) (Decision, error) {
	return (*s.active.Load()).Select(ctx, svc, attrs)
}

// Reload re-resolves the active implementation. Safe to call concurrently
// with Select.
func (s *Swappable) Reload() {
	next := s.resolve()
	s.active.Store(&next)
	logger.L().Info("redirection strategy reloaded", logger.Component("strategy"))
}
