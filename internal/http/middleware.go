package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/davidcastane/delega/internal/observability/logger"
)

// Middleware envuelve un handler.
type Middleware func(http.Handler) http.Handler

// Chain aplica middlewares en orden: el primero de la lista es el más externo.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

const headerRequestID = "X-Request-Id"

// WithRequestID garantiza un request ID por request y lo propaga en el
// response header y en el logger del contexto.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(headerRequestID, rid)

		l := logger.From(r.Context()).With(logger.RequestID(rid))
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), l)))
	})
}

// statusWriter captura status y bytes escritos para el access log.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// WithLogging emite un access log por request.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		logger.From(r.Context()).Info("http_request",
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(sw.status),
			logger.DurationMs(time.Since(start).Milliseconds()),
			logger.Bytes(sw.bytes),
			logger.ClientIP(r.RemoteAddr),
		)
	})
}

// WithRecover convierte panics en 500 con envelope JSON.
func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.From(r.Context()).Error("panic recovered",
					logger.Any("panic", rec), logger.Path(r.URL.Path))
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error": &AppError{Code: "INTERNAL", Message: "internal error"},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
