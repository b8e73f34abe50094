// Package main provides the entrypoint for the recreational capacity API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/recreationcalc/recreationcalc/internal/api"
	"github.com/recreationcalc/recreationcalc/internal/api/handler"
	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
	"github.com/recreationcalc/recreationcalc/internal/auth"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/config"
	"github.com/recreationcalc/recreationcalc/internal/database"
	"github.com/recreationcalc/recreationcalc/internal/resilience"
	"github.com/recreationcalc/recreationcalc/internal/route"
	"github.com/recreationcalc/recreationcalc/internal/telemetry"
	"github.com/recreationcalc/recreationcalc/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName   = "recreationcalc-api"
	tokenAudience = "recreationcalc-api"
)

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.App.Environment).
		Str("database_driver", cfg.Database.Driver).
		Msg("starting recreational capacity API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Environment,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}
	dependencyMetrics, err := middleware.NewDependencyMetrics()
	if err != nil {
		return fmt.Errorf("initialize dependency metrics: %w", err)
	}
	metricsReporter, err := capacity.NewMetricsReporter()
	if err != nil {
		return fmt.Errorf("initialize capacity metrics: %w", err)
	}

	calculator := capacity.NewCalculator(capacity.CalculatorConfig{
		Reporter: capacity.MultiReporter{capacity.NewLogReporter(log), metricsReporter},
	})

	registry := resilience.NewRegistry()

	var (
		pool        *pgxpool.Pool
		userRepo    auth.UserRepository
		catalogRepo catalog.Repository
		routeRepo   route.Repository
		dbPinger    handler.Pinger
	)

	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		userRepo = auth.NewInMemoryUserRepository()
		catalogRepo = catalog.NewSeededInMemoryRepository()
		routeRepo = route.NewInMemoryRepository()
	default:
		dbConfig := database.ConfigFrom(cfg.Database)
		pool, err = database.Connect(ctx, dbConfig, log)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		pgCatalog := catalog.NewPostgresRepository(pool)
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			if err := pgCatalog.Seed(ctx, catalog.DefaultFactors()); err != nil {
				return fmt.Errorf("seed factor catalog: %w", err)
			}
			log.Info().Msg("database schema applied")
		}

		userRepo = auth.NewPostgresUserRepository(pool)
		catalogRepo = pgCatalog
		routeRepo = route.NewPostgresRepository(pool)
		dbPinger = pool
	}

	signingKey := cfg.Auth.SigningKey
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	authService := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey:     signingKey,
			Issuer:         cfg.Auth.Issuer,
			Audience:       tokenAudience,
			AccessTokenTTL: cfg.Auth.AccessTokenTTL,
		}),
		UserRepo:    userRepo,
		BcryptCost:  cfg.Auth.BcryptCost,
		AdminEmails: cfg.Auth.AdminEmails,
		Logger:      log,
	})

	catalogService := catalog.NewService(catalog.ServiceConfig{
		Repository: catalogRepo,
		Logger:     log,
		CacheTTL:   cfg.Catalog.CacheTTL,
		Registry:   registry,
		Metrics:    dependencyMetrics,
	})

	routeService := route.NewService(route.ServiceConfig{
		Repository: routeRepo,
		Catalog:    catalogService,
		Calculator: calculator,
		Logger:     log,
	})

	if cfg.PubSub.Enabled {
		publisher, err := worker.NewPublisher(ctx, worker.PublisherConfig{
			ProjectID: cfg.PubSub.ProjectID,
			Topic:     cfg.PubSub.Topic,
			Registry:  registry,
			Logger:    log,
		})
		if err != nil {
			return fmt.Errorf("create pubsub publisher: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub publisher")
			}
		}()
		catalogService.SetPublisher(publisher)
		log.Info().Str("topic", cfg.PubSub.Topic).Msg("catalog changes published to pubsub")
	} else {
		job := worker.NewRecalculateJob(worker.RecalculateJobConfig{
			Config: worker.RecalculateConfig{
				Concurrency:  cfg.Worker.Concurrency,
				JobTimeout:   cfg.Worker.JobTimeout,
				RouteTimeout: cfg.Worker.RouteTimeout,
			},
			Routes: routeService,
			Logger: log,
		})
		catalogService.SetPublisher(worker.NewInlinePublisher(worker.NewJobHandler(job, log), log, cfg.Worker.JobTimeout))
		log.Info().Msg("catalog changes recalculated in process")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		RateLimit:      cfg.Server.RateLimitPerMinute,
		RequireTLS:     cfg.Server.RequireTLS,
		Metrics:        metrics,
		Registry:       registry,
		Database:       dbPinger,
		AuthService:    authService,
		RouteService:   routeService,
		CatalogService: catalogService,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
