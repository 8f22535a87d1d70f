// Package middleware provides HTTP middleware shared by the API routes.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/orogen/orogen/internal/api/shared"
)

// NewTraceMiddleware returns middleware that attaches a trace ID to every
// request's context so logs and error responses can be correlated.
func NewTraceMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			logger.Debug("request received",
				"method", r.Method,
				"path", r.URL.Path,
				"trace_id", shared.GetTraceID(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
