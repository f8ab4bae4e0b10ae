// Package httpapi exposes the meetapp services as a JSON HTTP API.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mmynk/meetapp/internal/auth"
	"github.com/mmynk/meetapp/internal/metrics"
	"github.com/mmynk/meetapp/internal/middleware"
	"github.com/mmynk/meetapp/internal/service"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the API.
type Deps struct {
	Meetups       *service.MeetupService
	Subscriptions *service.SubscriptionService
	Users         *service.UserService
	Sessions      *service.SessionService
	Files         *service.FileService
	JWT           *auth.JWTManager
	Limiter       *middleware.RateLimiter

	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64

	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string

	// Health lists dependencies checked by /healthz.
	Health []Pinger
}

type api struct {
	Deps
}

// NewRouter builds the HTTP handler serving the API.
func NewRouter(d Deps) http.Handler {
	a := &api{Deps: d}

	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.NotFoundHandler = http.HandlerFunc(a.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(a.methodNotAllowed)

	requireAuth := middleware.RequireAuth(d.JWT, writeError)
	protected := func(h http.HandlerFunc) http.Handler {
		return requireAuth(a.limit(h))
	}
	public := func(h http.HandlerFunc) http.Handler {
		return a.limit(h)
	}

	r.Handle("/users", public(a.createUser)).Methods(http.MethodPost)
	r.Handle("/sessions", public(a.createSession)).Methods(http.MethodPost)
	r.Handle("/files/{path}", public(a.serveFile)).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/healthz", http.HandlerFunc(a.health)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.Handle("/users", protected(a.updateUser)).Methods(http.MethodPut)
	r.Handle("/files", protected(a.uploadFile)).Methods(http.MethodPost)

	r.Handle("/meetups", protected(a.listMeetups)).Methods(http.MethodGet)
	r.Handle("/meetups", protected(a.createMeetup)).Methods(http.MethodPost)
	r.Handle("/meetups/{id}", protected(a.updateMeetup)).Methods(http.MethodPut)
	r.Handle("/meetups/{id}", protected(a.deleteMeetup)).Methods(http.MethodDelete)

	r.Handle("/subscriptions", protected(a.listSubscriptions)).Methods(http.MethodGet)
	r.Handle("/subscriptions/{meetup_id}", protected(a.subscribe)).Methods(http.MethodPost)

	return middleware.CORS(d.CORSOrigins)(middleware.Logging(r))
}

func (a *api) limit(h http.Handler) http.Handler {
	if a.Limiter == nil {
		return h
	}
	return a.Limiter.Handler(h)
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	for _, p := range a.Health {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "Route not found"})
}

func (a *api) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
}
