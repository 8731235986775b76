// Package orchestrator dirige el ciclo de vida de un flujo de autenticación
// delegada: selección de provider, redirect saliente, callback entrante y
// emisión de la assertion final.
//
// La política de acceso se evalúa fresca en los dos puntos de enforcement
// (antes del redirect y después del callback); el estado de correlación es de
// un solo uso.
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/davidcastane/delega/internal/assertion"
	"github.com/davidcastane/delega/internal/failure"
	"github.com/davidcastane/delega/internal/metrics"
	"github.com/davidcastane/delega/internal/observability/logger"
	"github.com/davidcastane/delega/internal/policy"
	"github.com/davidcastane/delega/internal/provider"
	tokens "github.com/davidcastane/delega/internal/security/token"
	"github.com/davidcastane/delega/internal/session"
	"github.com/davidcastane/delega/internal/strategy"
	"github.com/davidcastane/delega/internal/webflow"
)

// State is the flow position, attached to logs and results.
type State string

const (
	StateInit             State = "INIT"
	StateSelecting        State = "SELECTING"
	StateRedirected       State = "REDIRECTED"
	StateCallbackReceived State = "CALLBACK_RECEIVED"
	StateAuthenticated    State = "AUTHENTICATED"
	StateFailed           State = "FAILED"
)

// Service orchestrates delegated authentication flows.
type Service interface {
	// Begin runs SELECT and, when a single provider results, REDIRECT.
	Begin(ctx context.Context, in BeginInput) (*BeginResult, error)

	// Complete runs CALLBACK and FINALIZE over the raw callback parameters.
	// Failures come back as *failure.Record.
	Complete(ctx context.Context, params url.Values) (*AuthResult, error)
}

// Deps son las dependencias del orquestador.
type Deps struct {
	Registry *provider.Registry
	Enforcer *policy.Enforcer
	Strategy strategy.Strategy
	Webflow  *webflow.Manager
	Usage    *session.UsageStore
	Issuer   *assertion.Issuer
	Codes    *assertion.ResultCodes
}

// New creates the orchestrator service.
func New(deps Deps) Service {
	return &svc{deps: deps}
}

type svc struct {
	deps Deps
}

// BeginInput is the SELECT request.
type BeginInput struct {
	ServiceID string
	SessionID string
	// Provider forces a specific provider (user picked from a choice page).
	Provider string
	// RequestedProviders restricts candidates; empty means any.
	RequestedProviders []string
	// Params are the original request parameters, preserved across the round
	// trip for the final redirect.
	Params url.Values
}

// BeginResult is either an outbound redirect or a set of choices.
type BeginResult struct {
	State State

	// RedirectURL and Provider are set when the flow proceeds to REDIRECTED.
	RedirectURL string
	Provider    string

	// Choices is set when the caller must present a selection page.
	Choices []provider.Descriptor
}

// AuthResult is the FINALIZE outcome.
type AuthResult struct {
	State       State
	Principal   *provider.Principal
	Assertion   *assertion.Assertion
	Code        string
	ServiceID   string
	Provider    string
	RedirectURL string // service URL carrying the result code
}

func (s *svc) Begin(ctx context.Context, in BeginInput) (*BeginResult, error) {
	log := logger.From(ctx).With(
		logger.Component("orchestrator"),
		logger.Op("begin"),
		logger.ServiceID(in.ServiceID),
	)
	log.Debug("flow entering selection", logger.FlowState(string(StateSelecting)))

	// Primer punto de enforcement: el service como tal.
	ok, err := s.deps.Enforcer.IsServiceAuthorized(ctx, in.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: policy lookup: %w", err)
	}
	if !ok {
		log.Warn("service denied by policy", logger.FlowState(string(StateFailed)))
		return nil, failure.Denied(in.ServiceID, "", "")
	}

	providerName := in.Provider
	if providerName == "" {
		decision, err := s.deps.Strategy.Select(ctx, strategy.ServiceContext{
			ServiceID:          in.ServiceID,
			RequestedProviders: in.RequestedProviders,
		}, in.Params)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: strategy: %w", err)
		}

		switch decision.Kind {
		case strategy.KindDeny:
			log.Warn("redirection denied", logger.FlowState(string(StateFailed)))
			return nil, failure.Denied(in.ServiceID, "", decision.Reason)
		case strategy.KindPresentChoices:
			return &BeginResult{
				State:   StateSelecting,
				Choices: s.descriptors(decision.Providers),
			}, nil
		case strategy.KindAutoRedirect:
			providerName = decision.Provider
		default:
			return nil, failure.Denied(in.ServiceID, "", "")
		}
	}

	// El provider elegido (por estrategia o por el usuario) se re-verifica:
	// un pick forjado no debe saltarse la política.
	ok, err = s.deps.Enforcer.IsProviderAuthorized(ctx, in.ServiceID, providerName)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: policy lookup: %w", err)
	}
	if !ok {
		log.Warn("provider denied by policy",
			logger.Provider(providerName), logger.FlowState(string(StateFailed)))
		return nil, failure.Denied(in.ServiceID, providerName, "")
	}

	client, found := s.deps.Registry.Get(providerName)
	if !found || !client.Descriptor().Enabled {
		return nil, failure.Denied(in.ServiceID, providerName, "unknown or disabled identity provider")
	}

	nonce, err := tokens.GenerateOpaqueToken(16)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: nonce: %w", err)
	}

	token, err := s.deps.Webflow.Store(ctx, webflow.PendingContext{
		ServiceID:      in.ServiceID,
		Provider:       providerName,
		SessionID:      in.SessionID,
		Nonce:          nonce,
		OriginalParams: flatten(in.Params),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: store pending context: %w", err)
	}

	redirectURL, err := client.AuthorizeURL(ctx, token, nonce)
	if err != nil {
		return nil, failure.Classify(ctx, err, providerName, in.ServiceID)
	}

	metrics.FlowsStarted.WithLabelValues(providerName).Inc()
	log.Info("flow redirected to provider",
		logger.Provider(providerName), logger.FlowState(string(StateRedirected)))

	return &BeginResult{
		State:       StateRedirected,
		RedirectURL: redirectURL,
		Provider:    providerName,
	}, nil
}

func (s *svc) Complete(ctx context.Context, params url.Values) (*AuthResult, error) {
	started := time.Now()
	defer func() {
		metrics.CallbackDuration.Observe(float64(time.Since(started).Milliseconds()))
	}()

	log := logger.From(ctx).With(
		logger.Component("orchestrator"),
		logger.Op("complete"),
	)
	log.Debug("callback received", logger.FlowState(string(StateCallbackReceived)))

	token := webflow.TokenFromCallback(params)
	pc, err := s.deps.Webflow.RetrieveAndInvalidate(ctx, token)
	if err != nil {
		return nil, s.fail(ctx, log, err, "", "")
	}

	providerName, err := webflow.ResolveProvider(pc, params)
	if err != nil {
		return nil, s.fail(ctx, log, err, pc.Provider, pc.ServiceID)
	}
	log = log.With(logger.Provider(providerName), logger.ServiceID(pc.ServiceID))

	// Segundo punto de enforcement: la política pudo cambiar durante el round
	// trip al provider.
	ok, err := s.deps.Enforcer.IsProviderAuthorized(ctx, pc.ServiceID, providerName)
	if err != nil {
		return nil, s.fail(ctx, log, fmt.Errorf("policy lookup: %w", err), providerName, pc.ServiceID)
	}
	if !ok {
		metrics.Callbacks.WithLabelValues("failed").Inc()
		log.Warn("provider revoked during round trip", logger.FlowState(string(StateFailed)))
		return nil, failure.Denied(pc.ServiceID, providerName, "")
	}

	client, found := s.deps.Registry.Get(providerName)
	if !found {
		return nil, s.fail(ctx, log,
			fmt.Errorf("%w: provider %q not registered", webflow.ErrMismatch, providerName),
			providerName, pc.ServiceID)
	}

	principal, err := client.Validate(ctx, params, pc.Nonce)
	if err != nil {
		return nil, s.fail(ctx, log, err, providerName, pc.ServiceID)
	}

	// Best-effort: si falla el registro de uso, el login sigue; solo se
	// pierde la notificación de logout a este provider.
	if err := s.deps.Usage.RecordProvider(ctx, pc.SessionID, providerName); err != nil {
		log.Warn("usage record failed", logger.Err(err), logger.SessionID(pc.SessionID))
	}

	signed, err := s.deps.Issuer.Sign(principal, pc.ServiceID)
	if err != nil {
		return nil, s.fail(ctx, log, err, providerName, pc.ServiceID)
	}
	code, err := s.deps.Codes.Issue(ctx, signed)
	if err != nil {
		return nil, s.fail(ctx, log, err, providerName, pc.ServiceID)
	}

	redirectURL, err := resultRedirect(pc.ServiceID, code, pc.OriginalParams)
	if err != nil {
		return nil, s.fail(ctx, log, err, providerName, pc.ServiceID)
	}

	metrics.Callbacks.WithLabelValues("authenticated").Inc()
	log.Info("flow authenticated",
		logger.FlowState(string(StateAuthenticated)),
		logger.Subject(principal.Subject),
	)

	return &AuthResult{
		State:       StateAuthenticated,
		Principal:   principal,
		Assertion:   signed,
		Code:        code,
		ServiceID:   pc.ServiceID,
		Provider:    providerName,
		RedirectURL: redirectURL,
	}, nil
}

func (s *svc) fail(ctx context.Context, log *zap.Logger, err error, providerName, serviceID string) *failure.Record {
	rec := failure.Classify(ctx, err, providerName, serviceID)
	metrics.Callbacks.WithLabelValues("failed").Inc()
	log.Warn("flow failed",
		logger.FlowState(string(StateFailed)),
		logger.FailureKind(string(rec.Kind)),
		logger.Err(err),
	)
	return rec
}

func (s *svc) descriptors(names []string) []provider.Descriptor {
	out := make([]provider.Descriptor, 0, len(names))
	for _, n := range names {
		if c, ok := s.deps.Registry.Get(n); ok {
			out = append(out, c.Descriptor())
		}
	}
	return out
}

// resultRedirect appends the result code to the service URL, preserving any
// query it already carries.
func resultRedirect(serviceID, code string, original map[string]string) (string, error) {
	u, err := url.Parse(serviceID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: service url: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	if st, ok := original["service_state"]; ok && st != "" {
		q.Set("service_state", st)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func flatten(v url.Values) map[string]string {
	if len(v) == 0 {
		return nil
	}
	out := make(map[string]string, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}
