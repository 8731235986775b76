// Package session registra qué providers autenticaron cada sesión local,
// para poder notificarles el logout después.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/davidcastane/delega/internal/cache"
	tokens "github.com/davidcastane/delega/internal/security/token"
)

const usagePrefix = "dlg:usage:"

// UsageStore keeps, per local session, the set of providers that were used to
// authenticate it. Session IDs are hashed before use as cache keys.
type UsageStore struct {
	cache cache.Client
	ttl   time.Duration

	// El backend no ofrece read-modify-write atómico; serializamos las
	// escrituras del proceso. Con redis compartido la última escritura gana,
	// suficiente para un registro best-effort de logout targets.
	mu sync.Mutex
}

// NewUsageStore builds a UsageStore. ttl bounds how long usage is remembered;
// it should outlive the session lifetime.
func NewUsageStore(c cache.Client, ttl time.Duration) *UsageStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &UsageStore{cache: c, ttl: ttl}
}

func usageKey(sessionID string) string {
	return usagePrefix + tokens.SHA256Base64URL(sessionID)
}

// RecordProvider marks the provider as used by the session. Idempotent.
func (s *UsageStore) RecordProvider(ctx context.Context, sessionID, providerName string) error {
	if sessionID == "" || providerName == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, p := range current {
		if p == providerName {
			return nil
		}
	}
	current = append(current, providerName)

	raw, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("session: marshal usage: %w", err)
	}
	return s.cache.Set(ctx, usageKey(sessionID), raw, s.ttl)
}

// Providers returns the providers recorded for the session, in first-use
// order. Unknown sessions yield an empty slice.
func (s *UsageStore) Providers(ctx context.Context, sessionID string) ([]string, error) {
	if sessionID == "" {
		return nil, nil
	}
	return s.load(ctx, sessionID)
}

// Clear forgets the session's usage. Called after logout fan-out.
func (s *UsageStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.cache.Delete(ctx, usageKey(sessionID))
}

func (s *UsageStore) load(ctx context.Context, sessionID string) ([]string, error) {
	raw, ok := s.cache.Get(ctx, usageKey(sessionID))
	if !ok {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("session: unmarshal usage: %w", err)
	}
	return out, nil
}
