// Package middleware provides the HTTP middleware of the meetapp API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mmynk/meetapp/internal/apperr"
	"github.com/mmynk/meetapp/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for storing the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// EmailKey is the context key for storing the authenticated user's email.
	EmailKey contextKey = "email"
)

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetEmail extracts the user email from the context.
// Returns empty string if not found.
func GetEmail(ctx context.Context) string {
	email, _ := ctx.Value(EmailKey).(string)
	return email
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, EmailKey, email)
}

// ErrorWriter renders an error response. The HTTP layer supplies it so
// middleware failures share the API's error format.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireAuth returns a middleware that validates the bearer token and adds
// the user ID and email to the request context.
func RequireAuth(jwtManager *auth.JWTManager, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, r, apperr.Unauthorized("Token not provided"))
				return
			}

			claims, err := jwtManager.Validate(token)
			if err != nil {
				slog.Debug("Rejected token", "path", r.URL.Path, "error", err)
				writeError(w, r, apperr.Unauthorized("Token invalid"))
				return
			}

			setLoggedUser(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.UserID, claims.Email)))
		})
	}
}
