package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const requestInfoKey contextKey = "request_info"

// requestInfo collects facts learned further down the chain, such as the
// authenticated user, for the request log line.
type requestInfo struct {
	userID string
}

func setLoggedUser(ctx context.Context, userID string) {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.userID = userID
	}
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Logging logs every request with its status, user ID and duration.
// Server errors are logged at error level and client errors at warn level.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{}

		next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"user_id", info.userID,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case sw.status >= 500:
			slog.Error("HTTP request failed", attrs...)
		case sw.status >= 400:
			slog.Warn("HTTP request rejected", attrs...)
		default:
			slog.Info("HTTP request ok", attrs...)
		}
	})
}
