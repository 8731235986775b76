package assertion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/davidcastane/delega/internal/cache"
	tokens "github.com/davidcastane/delega/internal/security/token"
)

const codePrefix = "dlg:code:"

// ErrCodeNotFound: el code no existe, expiró o ya fue canjeado.
var ErrCodeNotFound = errors.New("assertion: result code not found")

// ResultCodes intercambia assertions por codes opacos de un solo uso. La
// assertion nunca viaja en la URL de redirect; el servicio la canjea
// server-to-server.
type ResultCodes struct {
	cache cache.Client
	ttl   time.Duration
}

// NewResultCodes builds a ResultCodes store with the given code TTL.
func NewResultCodes(c cache.Client, ttl time.Duration) *ResultCodes {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ResultCodes{cache: c, ttl: ttl}
}

// Issue stores the assertion and returns the opaque code to hand back via
// the browser redirect.
func (r *ResultCodes) Issue(ctx context.Context, a *Assertion) (string, error) {
	code, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", fmt.Errorf("assertion: generate code: %w", err)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("assertion: marshal: %w", err)
	}
	if err := r.cache.Set(ctx, codePrefix+code, raw, r.ttl); err != nil {
		return "", fmt.Errorf("assertion: store code: %w", err)
	}
	return code, nil
}

// Redeem trades the code for its assertion, invalidating it atomically. A
// replayed code gets ErrCodeNotFound.
func (r *ResultCodes) Redeem(ctx context.Context, code string) (*Assertion, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}
	raw, ok := r.cache.TakeOnce(ctx, codePrefix+code)
	if !ok {
		return nil, ErrCodeNotFound
	}
	var a Assertion
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("assertion: unmarshal: %w", err)
	}
	return &a, nil
}
