package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/route"
)

// RouteRecalculator lists stored routes and recalculates them.
type RouteRecalculator interface {
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	Recalculate(ctx context.Context, routeID string) (*capacity.Calculation, error)
}

// RecalculateJob recalculates stored routes with a bounded worker pool.
type RecalculateJob struct {
	config RecalculateConfig
	routes RouteRecalculator
	logger zerolog.Logger

	metrics *RecalculateMetrics
}

// RecalculateMetrics tracks cumulative job statistics.
type RecalculateMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns          int64
	RoutesRecalculated int64
	RoutesFailed       int64
	RoutesSkipped      int64
	Uncomputable       int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RecalculateJobConfig holds configuration for creating a RecalculateJob.
type RecalculateJobConfig struct {
	Config RecalculateConfig
	Routes RouteRecalculator
	Logger zerolog.Logger
}

// NewRecalculateJob creates a new recalculation job.
func NewRecalculateJob(cfg RecalculateJobConfig) *RecalculateJob {
	return &RecalculateJob{
		config:  cfg.Config.withDefaults(),
		routes:  cfg.Routes,
		logger:  cfg.Logger.With().Str("component", "recalculate_job").Logger(),
		metrics: &RecalculateMetrics{},
	}
}

// RecalculateResult summarizes one run.
type RecalculateResult struct {
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	TotalRoutes int
	Successful  int
	Failed      int
	// Skipped counts routes deleted before they were recalculated.
	Skipped int
	// Uncomputable counts successful recalculations without capacity figures.
	Uncomputable int
	Errors       []RecalculateError
}

// RecalculateError represents a failed route recalculation.
type RecalculateError struct {
	RouteID string
	Error   string
}

// Run recalculates the given routes, or every stored route when routeIDs
// is empty. It returns an error only when the route list cannot be read;
// per-route failures are reported in the result.
func (j *RecalculateJob) Run(ctx context.Context, routeIDs []string) (*RecalculateResult, error) {
	startTime := time.Now()
	result := &RecalculateResult{StartTime: startTime}

	ctx, cancel := context.WithTimeout(ctx, j.config.JobTimeout)
	defer cancel()

	j.logger.Info().
		Int("requested_routes", len(routeIDs)).
		Bool("all_routes", len(routeIDs) == 0).
		Int("concurrency", j.config.Concurrency).
		Msg("starting recalculation job")

	idsChan := make(chan string, j.config.Concurrency)
	resultsChan := make(chan routeResult, j.config.Concurrency)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.recalculateWorker(ctx, idsChan, resultsChan)
		}()
	}

	// Feed route IDs to workers
	listErr := make(chan error, 1)
	go func() {
		defer close(idsChan)
		listErr <- j.produce(ctx, routeIDs, idsChan)
	}()

	// Wait for workers to complete
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results
	for rr := range resultsChan {
		result.TotalRoutes++
		switch {
		case rr.err == nil:
			result.Successful++
			if !rr.computable {
				result.Uncomputable++
			}
		case errors.Is(rr.err, route.ErrRouteNotFound):
			result.Skipped++
		default:
			result.Failed++
			result.Errors = append(result.Errors, RecalculateError{RouteID: rr.routeID, Error: rr.err.Error()})
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	err := <-listErr
	event := j.logger.Info()
	if err != nil {
		event = j.logger.Error().Err(err)
	}
	event.
		Dur("duration", result.Duration).
		Int("total_routes", result.TotalRoutes).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("uncomputable", result.Uncomputable).
		Msg("recalculation job completed")

	if err != nil {
		return result, fmt.Errorf("listing routes: %w", err)
	}
	return result, nil
}

type routeResult struct {
	routeID    string
	computable bool
	err        error
}

// produce sends the requested IDs, or pages through every stored route.
func (j *RecalculateJob) produce(ctx context.Context, routeIDs []string, out chan<- string) error {
	send := func(id string) bool {
		select {
		case out <- id:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if len(routeIDs) > 0 {
		seen := make(map[string]struct{}, len(routeIDs))
		for _, id := range routeIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if !send(id) {
				return ctx.Err()
			}
		}
		return nil
	}

	after := ""
	for {
		ids, err := j.routes.ListIDs(ctx, after, j.config.BatchSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if !send(id) {
				return ctx.Err()
			}
		}
		if len(ids) < j.config.BatchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

func (j *RecalculateJob) recalculateWorker(ctx context.Context, ids <-chan string, results chan<- routeResult) {
	for id := range ids {
		select {
		case <-ctx.Done():
			results <- routeResult{routeID: id, err: ctx.Err()}
			continue
		default:
		}
		results <- j.recalculate(ctx, id)
	}
}

func (j *RecalculateJob) recalculate(ctx context.Context, routeID string) routeResult {
	routeCtx, cancel := context.WithTimeout(ctx, j.config.RouteTimeout)
	defer cancel()

	calc, err := j.routes.Recalculate(routeCtx, routeID)
	if err != nil {
		if !errors.Is(err, route.ErrRouteNotFound) {
			j.logger.Warn().Err(err).Str("route_id", routeID).Msg("route recalculation failed")
		}
		return routeResult{routeID: routeID, err: err}
	}

	return routeResult{routeID: routeID, computable: calc != nil && calc.Result != nil}
}

func (j *RecalculateJob) updateMetrics(result *RecalculateResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.RoutesRecalculated += int64(result.Successful)
	j.metrics.RoutesFailed += int64(result.Failed)
	j.metrics.RoutesSkipped += int64(result.Skipped)
	j.metrics.Uncomputable += int64(result.Uncomputable)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RecalculateJob) GetMetrics() RecalculateMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RecalculateMetrics{
		TotalRuns:          j.metrics.TotalRuns,
		RoutesRecalculated: j.metrics.RoutesRecalculated,
		RoutesFailed:       j.metrics.RoutesFailed,
		RoutesSkipped:      j.metrics.RoutesSkipped,
		Uncomputable:       j.metrics.Uncomputable,
		LastRunAt:          j.metrics.LastRunAt,
		LastRunDuration:    j.metrics.LastRunDuration,
		TotalDuration:      j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RecalculateJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":          m.TotalRuns,
		"routes_recalculated": m.RoutesRecalculated,
		"routes_failed":       m.RoutesFailed,
		"routes_skipped":      m.RoutesSkipped,
		"uncomputable":        m.Uncomputable,
		"last_run_at":         m.LastRunAt,
		"last_run_duration":   m.LastRunDuration.String(),
		"total_duration":      m.TotalDuration.String(),
	}
}
