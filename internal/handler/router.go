package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"access-service/internal/config"
	"access-service/internal/util"
)

// HealthChecker reports per-component health; an empty map means ready.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func(ctx context.Context) map[string]error

func (f HealthFunc) HealthCheck(ctx context.Context) map[string]error {
	return f(ctx)
}

// Handlers groups the route owners mounted under /api/v1.
type Handlers struct {
	Sessions *SessionHandler
	Guest    *GuestHandler
	Admin    *AdminHandler
}

// requireHTTPS rejects any request that wasn't made over TLS, directly or
// through a terminating proxy.
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil && !strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			w.Write([]byte(`{"success":false,"code":"HTTPS_REQUIRED","message":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg *config.Config, handlers Handlers, health HealthChecker, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if cfg.IsProduction() {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", cfg.Admin.TokenHeader},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"access-service"}`))
	})

	router.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ready", http.StatusOK
		components := map[string]string{}
		for name, err := range health.HealthCheck(r.Context()) {
			components[name] = err.Error()
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		if code != http.StatusOK {
			logger.Warn("Readiness check failed", util.Any("components", components))
		}
		responder{logger: logger}.respondWithJSON(w, code, map[string]any{
			"status":     status,
			"components": components,
		})
	})

	router.Route("/api/v1", func(r chi.Router) {
		handlers.Sessions.RegisterRoutes(r)
		handlers.Guest.RegisterRoutes(r)
		handlers.Admin.RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"code":"NOT_FOUND","message":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"success":false,"code":"METHOD_NOT_ALLOWED","message":"method not allowed"}`))
	})

	return router
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
