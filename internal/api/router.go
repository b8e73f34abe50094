// Package api provides the HTTP API for the capacity service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/recreationcalc/recreationcalc/internal/api/handler"
	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
	"github.com/recreationcalc/recreationcalc/internal/auth"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/resilience"
	"github.com/recreationcalc/recreationcalc/internal/route"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version        string
	BuildTime      string
	Logger         zerolog.Logger
	ServiceName    string
	RateLimit      int  // Standard requests per minute per user; 0 uses the default
	RequireTLS     bool // Reject requests forwarded as plain HTTP
	Metrics        *middleware.Metrics
	Registry       *resilience.Registry
	Database       handler.Pinger
	AuthService    *auth.Service
	RouteService   *route.Service
	CatalogService *catalog.Service
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "recreationcalc-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Database:  cfg.Database,
	})
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.Logger)
	userHandler := handler.NewUserHandler(cfg.AuthService, cfg.Logger)
	routeHandler := handler.NewRouteHandler(cfg.RouteService, cfg.CatalogService, cfg.Logger)
	factorHandler := handler.NewFactorHandler(cfg.CatalogService, cfg.Logger)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.AuthService)

	// Create rate limit middleware for different endpoint categories
	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)
	calculationRateLimit := middleware.RateLimitByUser(middleware.CalculationRateLimit)
	catalogWriteRateLimit := middleware.RateLimitByUser(middleware.CatalogWriteRateLimit)
	standardLimit := middleware.StandardRateLimit
	if cfg.RateLimit > 0 {
		standardLimit.RequestLimit = cfg.RateLimit
	}
	standardRateLimit := middleware.RateLimitByUser(standardLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Auth endpoints (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.Use(authRateLimit)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// User account endpoints (authenticated)
		r.Route("/users", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireJSON)
			r.Use(standardRateLimit)
			r.Get("/profile", userHandler.GetProfile)
			r.Put("/email", userHandler.ChangeEmail)
			r.Put("/password", userHandler.ChangePassword)
		})

		// Routes (authenticated) - writes recalculate capacity
		r.Route("/routes", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireJSON)
			r.Use(standardRateLimit)
			r.Get("/", routeHandler.ListRoutes)
			r.With(calculationRateLimit).Post("/", routeHandler.CreateRoute)
			r.Get("/recommendations", routeHandler.Recommendations)
			r.Route("/{routeId}", func(r chi.Router) {
				r.Get("/", routeHandler.GetRoute)
				r.With(calculationRateLimit).Put("/", routeHandler.UpdateRoute)
				r.Delete("/", routeHandler.DeleteRoute)
			})
		})

		// Capacity preview (authenticated) - compute only, nothing stored
		r.With(authMiddleware, middleware.RequireJSON, calculationRateLimit).
			Post("/capacity:preview", routeHandler.PreviewCapacity)

		// Admin endpoints (administrators only)
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireAdmin)
			r.Use(middleware.RequireJSON)

			r.Route("/factors", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", factorHandler.ListFactors)
				// Each accepted write queues a recalculation of every stored route.
				r.With(catalogWriteRateLimit).Put("/", factorHandler.UpsertFactors)
			})
		})
	})

	return r
}
