// Package webflow guarda el estado transitorio entre el redirect al provider
// y el callback: el pending authentication context, indexado por un
// correlation token opaco de un solo uso.
package webflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/davidcastane/delega/internal/cache"
	"github.com/davidcastane/delega/internal/metrics"
	"github.com/davidcastane/delega/internal/observability/logger"
	tokens "github.com/davidcastane/delega/internal/security/token"
)

const (
	keyPrefix      = "dlg:webflow:"
	tokenEntropy   = 32 // bytes; el token viaja como state por el provider
	// StateParam is the callback parameter carrying the correlation token for
	// OAuth2/OIDC providers.
	StateParam = "state"
	// RelayParam carries the correlation token for CAS providers, which
	// reserve no state parameter of their own.
	RelayParam = "relay"
)

// ErrNotFound: no hay contexto pendiente para el token. Cubre token
// desconocido, expirado, y reuso (el primer retrieve lo invalidó).
var ErrNotFound = errors.New("webflow: pending context not found")

// PendingContext is the state captured at redirect time and recovered,
// exactly once, at callback time.
type PendingContext struct {
	CorrelationToken string            `json:"-"`
	ServiceID        string            `json:"service_id"`
	Provider         string            `json:"provider"`
	SessionID        string            `json:"session_id,omitempty"`
	Nonce            string            `json:"nonce,omitempty"`
	OriginalParams   map[string]string `json:"original_params,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Manager persiste y recupera pending contexts sobre el cache compartido.
type Manager struct {
	cache cache.Client
	ttl   time.Duration
}

// NewManager builds a Manager with the given single-flow TTL.
func NewManager(c cache.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Manager{cache: c, ttl: ttl}
}

// Store persists the pending context and returns the fresh correlation token.
func (m *Manager) Store(ctx context.Context, pc PendingContext) (string, error) {
	token, err := tokens.GenerateOpaqueToken(tokenEntropy)
	if err != nil {
		return "", fmt.Errorf("webflow: generate token: %w", err)
	}
	pc.CreatedAt = time.Now().UTC()

	raw, err := json.Marshal(pc)
	if err != nil {
		return "", fmt.Errorf("webflow: marshal: %w", err)
	}
	if err := m.cache.Set(ctx, keyPrefix+token, raw, m.ttl); err != nil {
		return "", fmt.Errorf("webflow: store: %w", err)
	}

	logger.From(ctx).Debug("pending context stored",
		logger.Component("webflow"),
		logger.Provider(pc.Provider),
		logger.ServiceID(pc.ServiceID),
	)
	return token, nil
}

// RetrieveAndInvalidate recovers the pending context for the token and
// removes it atomically. A second call with the same token, concurrent or
// not, gets ErrNotFound.
func (m *Manager) RetrieveAndInvalidate(ctx context.Context, token string) (*PendingContext, error) {
	if token == "" {
		metrics.CorrelationTakes.WithLabelValues("miss").Inc()
		return nil, ErrNotFound
	}

	raw, ok := m.cache.TakeOnce(ctx, keyPrefix+token)
	if !ok {
		metrics.CorrelationTakes.WithLabelValues("miss").Inc()
		return nil, ErrNotFound
	}

	var pc PendingContext
	if err := json.Unmarshal(raw, &pc); err != nil {
		metrics.CorrelationTakes.WithLabelValues("miss").Inc()
		return nil, fmt.Errorf("webflow: unmarshal: %w", err)
	}

	// El TTL del backend ya venció la mayoría de los casos; el re-check cubre
	// backends de memoria con janitor perezoso.
	if time.Since(pc.CreatedAt) > m.ttl {
		metrics.CorrelationTakes.WithLabelValues("miss").Inc()
		return nil, ErrNotFound
	}

	pc.CorrelationToken = token
	metrics.CorrelationTakes.WithLabelValues("hit").Inc()
	return &pc, nil
}

// TokenFromCallback extracts the correlation token from callback parameters,
// accepting both the OAuth2 state convention and the CAS relay convention.
func TokenFromCallback(params url.Values) string {
	if s := params.Get(StateParam); s != "" {
		return s
	}
	return params.Get(RelayParam)
}
