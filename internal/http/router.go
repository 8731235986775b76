package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter monta la superficie HTTP completa del servidor.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(WithRequestID)
	r.Use(WithLogging)
	r.Use(WithRecover)

	r.Route("/delegation", func(r chi.Router) {
		r.Get("/providers", s.handleProviders)
		r.Get("/start", s.handleStart)
		r.Get("/callback", s.handleCallback)
		r.Post("/callback", s.handleCallback)
		r.Post("/exchange", s.handleExchange)
	})
	r.Post("/logout", s.handleLogout)

	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
