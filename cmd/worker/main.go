// Package main provides the entrypoint for the capacity recalculation worker.
//
// With Pub/Sub enabled the worker consumes job messages until it is
// stopped. Without it, the worker recalculates every stored route once
// and exits, which suits scheduled runs.
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

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
	"github.com/recreationcalc/recreationcalc/internal/api/response"
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

const serviceName = "recreationcalc-worker"

func main() {
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
		log.Error().Err(err).Msg("worker exited with error")
		os.Exit(1)
	}
	log.Info().Msg("worker stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.App.Environment).
		Bool("pubsub", cfg.PubSub.Enabled).
		Msg("starting capacity worker")

	if cfg.Database.Driver != "postgres" {
		return errors.New("worker requires the postgres database driver")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	dependencyMetrics, err := middleware.NewDependencyMetrics()
	if err != nil {
		return fmt.Errorf("initialize dependency metrics: %w", err)
	}
	metricsReporter, err := capacity.NewMetricsReporter()
	if err != nil {
		return fmt.Errorf("initialize capacity metrics: %w", err)
	}

	pool, err := database.Connect(ctx, database.ConfigFrom(cfg.Database), log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	catalogService := catalog.NewService(catalog.ServiceConfig{
		Repository: catalog.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   cfg.Catalog.CacheTTL,
		Registry:   resilience.NewRegistry(),
		Metrics:    dependencyMetrics,
	})

	routeService := route.NewService(route.ServiceConfig{
		Repository: route.NewPostgresRepository(pool),
		Catalog:    catalogService,
		Calculator: capacity.NewCalculator(capacity.CalculatorConfig{
			Reporter: capacity.MultiReporter{capacity.NewLogReporter(log), metricsReporter},
		}),
		Logger: log,
	})

	job := worker.NewRecalculateJob(worker.RecalculateJobConfig{
		Config: worker.RecalculateConfig{
			Concurrency:  cfg.Worker.Concurrency,
			JobTimeout:   cfg.Worker.JobTimeout,
			RouteTimeout: cfg.Worker.RouteTimeout,
		},
		Routes: routeService,
		Logger: log,
	})
	jobs := worker.NewJobHandler(job, log)

	if !cfg.PubSub.Enabled {
		_, err := jobs.Handle(ctx, worker.JobMessage{JobType: worker.JobTypeRecalculate, RequestedAt: time.Now().UTC()})
		return err
	}

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSub.ProjectID,
		SubscriptionName: cfg.PubSub.Subscription,
		Jobs:             jobs,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("create pubsub handler: %w", err)
	}
	defer func() {
		if err := handler.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}()

	// Cloud Run expects the worker to answer health checks.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      healthRouter(job),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	receiveErr := handler.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	if receiveErr != nil && !errors.Is(receiveErr, context.Canceled) {
		return fmt.Errorf("receive messages: %w", receiveErr)
	}
	return nil
}

func healthRouter(job *worker.RecalculateJob) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{
			"status":  "OK",
			"version": Version,
		})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, job.MetricsSnapshot())
	})
	return r
}
