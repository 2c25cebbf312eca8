package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/metrics"
	"admin-auth-service/internal/util"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (fn HealthFunc) HealthCheck(ctx context.Context) error { return fn(ctx) }

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(authHandler *AuthHandler, health HealthChecker, cfg *config.Config, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	// Enforce HTTPS-only when the server terminates TLS itself
	if cfg.Server.EnableTLS {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration; credentials are required for the session cookie
	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if health != nil {
			if err := health.HealthCheck(ctx); err != nil {
				util.Warn("Health check failed", util.ErrorField(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy","service":"admin-auth-service"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"admin-auth-service"}`))
	})
	router.Handle("/metrics", metrics.Handler())

	authHandler.RegisterRoutes(router)

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"endpoint_not_found"}`))
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"success":false,"error":"method_not_allowed"}`))
	})

	return router
}
