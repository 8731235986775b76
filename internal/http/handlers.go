// Package http expone la superficie de autenticación delegada: inicio de
// flujo, callback del provider, canje de result codes y logout.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/davidcastane/delega/internal/assertion"
	"github.com/davidcastane/delega/internal/cache"
	"github.com/davidcastane/delega/internal/logout"
	"github.com/davidcastane/delega/internal/observability/logger"
	"github.com/davidcastane/delega/internal/orchestrator"
	"github.com/davidcastane/delega/internal/policy"
	"github.com/davidcastane/delega/internal/provider"
)

// SessionCookie lleva el ID de la sesión local del browser.
const SessionCookie = "dlg_sid"

// Server agrupa las dependencias de los handlers.
type Server struct {
	Orch     orchestrator.Service
	Registry *provider.Registry
	Enforcer *policy.Enforcer
	Codes    *assertion.ResultCodes
	Logout   *logout.Coordinator
	Cache    cache.Client
}

type providerView struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Kind        string `json:"kind"`
}

func viewsOf(ds []provider.Descriptor) []providerView {
	out := make([]providerView, 0, len(ds))
	for _, d := range ds {
		out = append(out, providerView{Name: d.Name, DisplayName: d.DisplayName, Kind: string(d.Kind)})
	}
	return out
}

// handleProviders lista los providers habilitados y permitidos para el service.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	serviceID := r.URL.Query().Get("service")
	if serviceID == "" {
		writeError(w, r, badRequest("missing service parameter"))
		return
	}

	var names []string
	byName := map[string]provider.Descriptor{}
	for _, c := range s.Registry.Enabled() {
		d := c.Descriptor()
		names = append(names, d.Name)
		byName[d.Name] = d
	}

	permitted, err := s.Enforcer.FilterProviders(r.Context(), serviceID, names)
	if err != nil {
		writeError(w, r, internalErr(err))
		return
	}

	ds := make([]provider.Descriptor, 0, len(permitted))
	for _, n := range permitted {
		ds = append(ds, byName[n])
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": viewsOf(ds)})
}

// handleStart arranca el flujo: redirect al provider o página de selección.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID := q.Get("service")
	if serviceID == "" {
		writeError(w, r, badRequest("missing service parameter"))
		return
	}

	var requested []string
	if raw := q.Get("providers"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				requested = append(requested, p)
			}
		}
	}

	res, err := s.Orch.Begin(r.Context(), orchestrator.BeginInput{
		ServiceID:          serviceID,
		SessionID:          s.ensureSession(w, r),
		Provider:           q.Get("provider"),
		RequestedProviders: requested,
		Params:             q,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if res.State == orchestrator.StateRedirected {
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"choices": viewsOf(res.Choices)})
}

// handleCallback procesa el retorno del provider y redirige al service con el
// result code.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if r.Method == http.MethodPost {
		// SAML y algunos CAS hacen POST binding; los form values cuentan como
		// callback parameters.
		if err := r.ParseForm(); err == nil {
			for k, vs := range r.PostForm {
				if params.Get(k) == "" && len(vs) > 0 {
					params.Set(k, vs[0])
				}
			}
		}
	}

	res, err := s.Orch.Complete(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

type exchangeRequest struct {
	Code string `json:"code"`
}

// handleExchange canjea un result code por la assertion firmada,
// server-to-server.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, r, badRequest("missing code"))
		return
	}

	a, err := s.Codes.Redeem(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, assertion.ErrCodeNotFound) {
			writeError(w, r, notFoundErr("unknown, expired or already redeemed code"))
			return
		}
		writeError(w, r, internalErr(err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

// handleLogout cierra la sesión local y notifica a los providers usados.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if c, err := r.Cookie(SessionCookie); err == nil {
		sessionID = c.Value
	}
	if sessionID == "" {
		var req logoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			sessionID = req.SessionID
		}
	}
	if sessionID == "" {
		writeError(w, r, badRequest("no session to log out"))
		return
	}

	res, err := s.Logout.Logout(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, internalErr(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name: SessionCookie, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true, "notified": res.Notified})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.Cache.Ping(r.Context()); err != nil {
		logger.From(r.Context()).Warn("readiness check failed", logger.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ensureSession lee la cookie de sesión o crea una nueva.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name: SessionCookie, Value: sid, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
	return sid
}
