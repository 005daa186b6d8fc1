package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/bokzor/revenue-boost-sub014/internal/logger"
)

// RequestLogger creates a middleware that injects a request-scoped logger
// into the context and logs the completion of each request.
// The injected logger carries the request ID so every line emitted further
// down the call chain is correlatable.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Prefer the caller's correlation id, then Chi's generated one.
			reqID := r.Header.Get("X-Request-Id")
			if reqID == "" {
				reqID = middleware.GetReqID(r.Context())
			}
			if reqID == "" {
				reqID = uuid.NewString()
			}

			reqLogger := base.With(slog.String("request_id", reqID))
			ctx := logger.WithContext(r.Context(), reqLogger)

			// Wrap the ResponseWriter to capture the status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// Process the request
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Calculate duration
			duration := time.Since(start)

			// Log the completed request
			// We use Info level for success, Warn for 4xx, Error for 5xx
			level := slog.LevelInfo
			status := ww.Status()

			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			reqLogger.Log(ctx, level, "HTTP request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", duration.String(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
