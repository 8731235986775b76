package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/davidcastane/delega/internal/failure"
	"github.com/davidcastane/delega/internal/observability/logger"
)

// AppError es el envelope de error que ve el cliente. Err queda fuera del
// JSON: las causas internas van al log, nunca al browser.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// fromFailure mapea la taxonomía de fallos a respuestas HTTP.
func fromFailure(rec *failure.Record) *AppError {
	status := http.StatusInternalServerError
	switch rec.Kind {
	case failure.AccessDenied:
		status = http.StatusForbidden
	case failure.CorrelationLost:
		status = http.StatusGone
	case failure.ProviderMismatch:
		status = http.StatusBadRequest
	case failure.ProviderRejected:
		status = http.StatusUnauthorized
	case failure.ProviderError:
		status = http.StatusBadGateway
	}
	return &AppError{
		Code:       string(rec.Kind),
		Message:    rec.Message,
		Retryable:  rec.Retryable(),
		HTTPStatus: status,
		Err:        rec,
	}
}

func badRequest(message string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest}
}

func notFoundErr(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound}
}

func internalErr(err error) *AppError {
	return &AppError{
		Code:       "INTERNAL",
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// writeError serializa el error al cliente y deja la causa en el log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var app *AppError
	if !errors.As(err, &app) {
		var rec *failure.Record
		if errors.As(err, &rec) {
			app = fromFailure(rec)
		} else {
			app = internalErr(err)
		}
	}

	if app.HTTPStatus >= 500 {
		logger.From(r.Context()).Error("request failed",
			logger.Layer("handler"), logger.String("code", app.Code), logger.Err(app.Err))
	} else {
		logger.From(r.Context()).Debug("request rejected",
			logger.Layer("handler"), logger.String("code", app.Code))
	}

	writeJSON(w, app.HTTPStatus, map[string]any{"error": app})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
