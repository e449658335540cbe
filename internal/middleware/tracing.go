// Package middleware provides HTTP middleware for the provider daemon's
// operator-pipe HTTP transport (spec §4.5).
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/provider-daemon/internal/logging"
)

// TracingMiddleware stamps every request with a request id (reusing the
// client's X-Request-ID header if it supplied one) and logs method,
// path, status and duration on completion.
type TracingMiddleware struct {
	logger *logging.Logger
}

func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{logger: logger}
}

func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r)

		m.logger.With(map[string]any{
			"requestId": requestID,
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    rw.statusCode,
			"duration":  time.Since(start).String(),
		}).Infof("request handled")
	})
}

// Note: responseWriter is defined in metrics.go.
