// Package failure clasifica los fallos de autenticación delegada en una
// taxonomía estable, apta para métricas y para decidir la respuesta HTTP.
package failure

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidcastane/delega/internal/metrics"
	"github.com/davidcastane/delega/internal/provider"
	"github.com/davidcastane/delega/internal/webflow"
)

// Kind is the failure classification.
type Kind string

const (
	// AccessDenied: policy denied the service or the provider.
	AccessDenied Kind = "ACCESS_DENIED"
	// CorrelationLost: no pending context for the callback (expired, replayed
	// or never issued).
	CorrelationLost Kind = "CORRELATION_LOST"
	// ProviderMismatch: the callback claims a different provider than the one
	// the flow was started with.
	ProviderMismatch Kind = "PROVIDER_MISMATCH"
	// ProviderRejected: the provider rejected the user (denied consent,
	// cancelled login). Retryable.
	ProviderRejected Kind = "PROVIDER_REJECTED"
	// ProviderError: protocol or transport failure talking to the provider.
	ProviderError Kind = "PROVIDER_ERROR"
)

// Record is a classified failure. It implements error so orchestrator
// operations can return it directly.
type Record struct {
	Kind      Kind
	Provider  string
	ServiceID string
	Message   string
	Err       error // underlying cause, not exposed to clients
}

func (r *Record) Error() string {
	if r.Provider != "" {
		return fmt.Sprintf("%s (provider %s): %s", r.Kind, r.Provider, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

func (r *Record) Unwrap() error { return r.Err }

// Retryable reports whether the user can reasonably retry the flow.
func (r *Record) Retryable() bool {
	return r.Kind == ProviderRejected || r.Kind == CorrelationLost
}

// New builds a Record with a canned human-readable message for the kind.
func New(kind Kind, providerName, serviceID string, err error) *Record {
	return &Record{
		Kind:      kind,
		Provider:  providerName,
		ServiceID: serviceID,
		Message:   defaultMessage(kind),
		Err:       err,
	}
}

func defaultMessage(kind Kind) string {
	switch kind {
	case AccessDenied:
		return "delegated authentication is not permitted for this service"
	case CorrelationLost:
		return "the authentication attempt expired or was already used; please start again"
	case ProviderMismatch:
		return "the response did not come from the expected identity provider"
	case ProviderRejected:
		return "the identity provider rejected the sign-in; you may try again"
	case ProviderError:
		return "the identity provider could not be reached or answered incorrectly"
	default:
		return "delegated authentication failed"
	}
}

// Classify maps an arbitrary error from the callback path onto the taxonomy
// and records the failure metric. A *Record passes through unchanged.
func Classify(ctx context.Context, err error, providerName, serviceID string) *Record {
	var rec *Record
	if errors.As(err, &rec) {
		metrics.Failures.WithLabelValues(string(rec.Kind)).Inc()
		return rec
	}

	kind := ProviderError
	switch {
	case errors.Is(err, webflow.ErrNotFound):
		kind = CorrelationLost
	case errors.Is(err, webflow.ErrMismatch), errors.Is(err, webflow.ErrUnresolved):
		kind = ProviderMismatch
	case errors.Is(err, provider.ErrRejected):
		kind = ProviderRejected
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = ProviderError
	}

	metrics.Failures.WithLabelValues(string(kind)).Inc()
	return New(kind, providerName, serviceID, err)
}

// Denied builds and counts an AccessDenied record. SELECT-time denials skip
// Classify because there is no underlying error to inspect.
func Denied(serviceID, providerName, reason string) *Record {
	metrics.Failures.WithLabelValues(string(AccessDenied)).Inc()
	rec := New(AccessDenied, providerName, serviceID, nil)
	if reason != "" {
		rec.Message = reason
	}
	return rec
}
