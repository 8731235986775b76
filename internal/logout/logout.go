// Package logout propaga el cierre de sesión local a los providers externos
// que participaron en ella. La propagación es best-effort: el logout local
// nunca falla porque un provider esté caído.
package logout

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidcastane/delega/internal/metrics"
	"github.com/davidcastane/delega/internal/observability/logger"
	"github.com/davidcastane/delega/internal/provider"
	"github.com/davidcastane/delega/internal/session"
)

// Outcome is the per-provider result of a logout notification.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped" // provider has no logout endpoint
)

// Result summarizes a logout fan-out.
type Result struct {
	SessionID string
	Notified  map[string]Outcome
}

// Coordinator notifica logout a los providers usados por cada sesión.
type Coordinator struct {
	registry *provider.Registry
	usage    *session.UsageStore
	client   *http.Client
	timeout  time.Duration
}

// NewCoordinator builds a Coordinator. timeout bounds each individual
// provider notification.
func NewCoordinator(registry *provider.Registry, usage *session.UsageStore, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Coordinator{
		registry: registry,
		usage:    usage,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

// Logout terminates the session's delegated state: notifies every provider
// recorded for the session, concurrently, then clears the usage record.
// Notification failures are logged and counted, never propagated.
func (c *Coordinator) Logout(ctx context.Context, sessionID string) (*Result, error) {
	log := logger.From(ctx).With(
		logger.Component("logout"),
		logger.SessionID(sessionID),
	)

	used, err := c.usage.Providers(ctx, sessionID)
	if err != nil {
		// Sin registro de uso no hay a quién notificar; el logout local sigue.
		log.Warn("usage lookup failed", logger.Err(err))
		used = nil
	}

	res := &Result{SessionID: sessionID, Notified: make(map[string]Outcome, len(used))}
	outcomes := make([]Outcome, len(used))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range used {
		i, name := i, name
		g.Go(func() error {
			outcomes[i] = c.notify(gctx, log, name)
			return nil
		})
	}
	_ = g.Wait()

	for i, name := range used {
		res.Notified[name] = outcomes[i]
		metrics.LogoutNotifications.WithLabelValues(string(outcomes[i])).Inc()
	}

	if err := c.usage.Clear(ctx, sessionID); err != nil {
		log.Warn("usage clear failed", logger.Err(err))
	}

	log.Info("session logout propagated", logger.Count(len(used)))
	return res, nil
}

func (c *Coordinator) notify(ctx context.Context, log *zap.Logger, name string) Outcome {
	client, ok := c.registry.Get(name)
	if !ok {
		return OutcomeSkipped
	}
	notifier, ok := client.(provider.LogoutNotifier)
	if !ok {
		return OutcomeSkipped
	}
	logoutURL, ok := notifier.LogoutURL()
	if !ok || logoutURL == "" {
		return OutcomeSkipped
	}

	nctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(nctx, http.MethodGet, logoutURL, nil)
	if err != nil {
		log.Warn("logout request build failed", logger.Provider(name), logger.Err(err))
		return OutcomeFailed
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn("logout notification failed", logger.Provider(name), logger.Err(err))
		return OutcomeFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Warn("logout notification rejected",
			logger.Provider(name), logger.Status(resp.StatusCode))
		return OutcomeFailed
	}
	log.Debug("logout notified", logger.Provider(name))
	return OutcomeOK
}
