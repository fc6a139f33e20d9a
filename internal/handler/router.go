package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jobcoach-muenster/backend/internal/metrics"
	"github.com/jobcoach-muenster/backend/internal/middleware"
)

// Pinger prüft die Erreichbarkeit der Datenbank. Teilmenge von sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps bündelt die Abhängigkeiten von NewRouter.
type RouterDeps struct {
	Logger *slog.Logger

	// Middleware
	Verifier    middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter

	// Services
	AuthService   AuthServiceInterface
	GDPRService   GDPRServiceInterface
	CleanupRunner CleanupRunner

	// Betrieb
	DB       Pinger
	Gatherer prometheus.Gatherer
}

// NewRouter konfiguriert alle Routen und die Middleware-Kette.
//
// Reihenfolge der Middleware-Kette:
//
//	Recovery → Logging → (Auth) → RateLimit
//
// /health und /metrics liegen außerhalb der Authentifizierung, ebenso der
// Login selbst; alle /api-Routen dahinter verlangen ein gültiges Token.
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	authHandler := NewAuthHandler(deps.AuthService)
	gdprHandler := NewGDPRHandler(deps.GDPRService, deps.Logger)
	cleanupHandler := NewCleanupHandler(deps.CleanupRunner, deps.Logger)

	// --- Routen ohne Authentifizierung ---

	r.Get("/health", healthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Post("/api/auth/login", authHandler.Login)
	})

	// --- Routen mit Authentifizierung ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Verifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Post("/api/auth/logout", authHandler.Logout)

		r.Route("/api/gdpr", func(r chi.Router) {
			r.Post("/export", gdprHandler.Export)
			r.Post("/erasure", gdprHandler.Erasure)
		})

		r.Post("/api/antraege/{id}/loeschung", gdprHandler.ScheduleDeletion)
		r.Post("/api/cleanup/run", cleanupHandler.Run)
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Die Datenbank ist nicht erreichbar.")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
