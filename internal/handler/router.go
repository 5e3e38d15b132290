package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/usersvc/internal/observability/metrics"
	"github.com/aryan0dhankhar/usersvc/internal/security/audit"
	"github.com/aryan0dhankhar/usersvc/internal/security/auth"
	"github.com/aryan0dhankhar/usersvc/internal/security/middleware"
	"github.com/aryan0dhankhar/usersvc/internal/security/ratelimit"
)

// RouterDeps are the collaborators wired into the HTTP surface
type RouterDeps struct {
	Users   *UserHandler
	Auth    *AuthHandler // nil when authentication is disabled
	Health  *HealthHandler
	Tokens  *auth.TokenManager // nil when authentication is disabled
	Audit   *audit.Logger
	Limiter *ratelimit.Limiter // nil disables write throttling
	Logger  *slog.Logger
}

// NewRouter assembles routes and middleware.
// Reads are public; writes require a bearer token when Tokens is set and
// are throttled per caller when Limiter is set.
func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	if d.Audit == nil {
		d.Audit = audit.NewLogger(log)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(middleware.SanitizePath(log))

	r.Get("/healthz", d.Health.Health)
	r.Get("/readyz", d.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ValidateJSONContentType(log))

		if d.Auth != nil {
			r.Post("/auth/login", d.Auth.Login)
		}

		r.Route("/users", func(r chi.Router) {
			r.Get("/", d.Users.List)
			r.Get("/{id}", d.Users.Get)

			r.Group(func(r chi.Router) {
				if d.Tokens != nil {
					r.Use(middleware.JWTMiddleware(d.Tokens, d.Audit, log))
				}
				if d.Limiter != nil {
					r.Use(middleware.RateLimitMiddleware(d.Limiter, log))
				}
				r.Post("/", d.Users.Create)
				r.Patch("/{id}", d.Users.Update)
				r.Delete("/{id}", d.Users.Delete)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, log, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, log, http.StatusMethodNotAllowed, "method not allowed")
	})

	return otelhttp.NewHandler(r, "usersvc",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
