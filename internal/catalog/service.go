package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/resilience"
)

// Publisher announces catalog changes so stored calculations can be refreshed.
type Publisher interface {
	PublishCatalogUpdated(ctx context.Context) error
}

// Metrics records cache and repository activity.
type Metrics interface {
	RecordRequest(dependency, operation string, duration time.Duration, err error)
	RecordCacheHit(dependency, operation string)
	RecordCacheMiss(dependency, operation string)
}

const dependencyName = "factor-catalog"

// loadTimeout bounds a shared reload, which outlives the request that
// started it.
const loadTimeout = 10 * time.Second

// ServiceConfig holds configuration for the catalog service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	CacheTTL   time.Duration // How long a loaded snapshot is served without reloading
	Registry   *resilience.Registry
	Publisher  Publisher
	Metrics    Metrics // Optional
}

// Service serves cached catalog snapshots. Reads go through a circuit
// breaker; when a refresh fails the previous snapshot is served as stale.
type Service struct {
	repo      Repository
	logger    zerolog.Logger
	cacheTTL  time.Duration
	guard     *resilience.Guard[[]Factor]
	publisher Publisher
	metrics   Metrics

	loads singleflight.Group

	mu       sync.RWMutex
	snapshot *Snapshot
	expiry   time.Time
}

// NewService creates a new catalog service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	guardCfg := resilience.DefaultGuardConfig(dependencyName)
	guardCfg.Registry = cfg.Registry

	return &Service{
		repo:      cfg.Repository,
		logger:    cfg.Logger.With().Str("component", "catalog").Logger(),
		cacheTTL:  cacheTTL,
		guard:     resilience.NewGuard[[]Factor](guardCfg),
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
	}
}

// Snapshot returns the current catalog snapshot, reloading it when the
// cached one has expired. Concurrent reloads are collapsed into one.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	cached, expiry := s.snapshot, s.expiry
	s.mu.RUnlock()

	if cached != nil && time.Now().Before(expiry) {
		if s.metrics != nil {
			s.metrics.RecordCacheHit(dependencyName, "snapshot")
		}
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(dependencyName, "snapshot")
	}

	v, err, _ := s.loads.Do("snapshot", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx)
	})
	if err != nil {
		if cached != nil {
			s.logger.Warn().Err(err).
				Time("loaded_at", cached.LoadedAt).
				Msg("factor catalog refresh failed, serving stale snapshot")
			return cached.stale(), nil
		}
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	return v.(*Snapshot), nil
}

func (s *Service) load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	factors, err := s.guard.Execute(ctx, s.repo.List)
	if s.metrics != nil {
		s.metrics.RecordRequest(dependencyName, "list", time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	snapshot := NewSnapshot(factors, now)

	s.mu.Lock()
	s.snapshot = snapshot
	s.expiry = now.Add(s.cacheTTL)
	s.mu.Unlock()

	s.logger.Debug().Int("factors", snapshot.Len()).Msg("factor catalog loaded")
	return snapshot, nil
}

// List returns every factor in the catalog.
func (s *Service) List(ctx context.Context) ([]Factor, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Factors(), nil
}

// Recommendations returns the catalog entries for the selected factors.
func (s *Service) Recommendations(ctx context.Context, selection capacity.FactorSelection) ([]Factor, error) {
	if selection.IsEmpty() {
		return []Factor{}, nil
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Selected(selection), nil
}

// Upsert validates and stores factors, expires the cached snapshot and
// announces the change. A failed announcement is logged, not returned.
func (s *Service) Upsert(ctx context.Context, factors []Factor) error {
	if fieldErrors := validateFactors(factors); len(fieldErrors) > 0 {
		return &ValidationError{Errors: fieldErrors}
	}

	if err := s.repo.Upsert(ctx, factors); err != nil {
		return fmt.Errorf("store factors: %w", err)
	}

	s.Invalidate()
	s.logger.Info().Int("factors", len(factors)).Msg("factor catalog updated")

	if publisher := s.currentPublisher(); publisher != nil {
		if err := publisher.PublishCatalogUpdated(ctx); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish catalog update, stored calculations keep old coefficients")
		}
	}

	return nil
}

// SetPublisher replaces the publisher notified after Upsert. It lets the
// in-process worker be attached once the services that depend on the
// catalog exist.
func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

func (s *Service) currentPublisher() Publisher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publisher
}

// Invalidate expires the cached snapshot so the next read reloads it.
// The snapshot itself is kept as the stale fallback.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = time.Time{}
}

var (
	minFactorValue = decimal.NewFromInt(-1)
	maxFactorValue = decimal.NewFromInt(1)
)

func validateFactors(factors []Factor) []models.FieldError {
	var errs []models.FieldError
	if len(factors) == 0 {
		return append(errs, models.FieldError{Field: "factors", Message: "at least one factor is required", Code: "min"})
	}

	seen := make(map[capacity.FactorKey]struct{}, len(factors))
	for i, f := range factors {
		prefix := fmt.Sprintf("factors[%d].", i)

		if !f.Kind.Valid() {
			errs = append(errs, models.FieldError{Field: prefix + "kind", Message: "must be one of: ecological management", Code: "factor_kind"})
		}
		if f.Number < 1 {
			errs = append(errs, models.FieldError{Field: prefix + "number", Message: "must be greater than or equal to 1", Code: "gte"})
		}
		if strings.TrimSpace(f.Description) == "" {
			errs = append(errs, models.FieldError{Field: prefix + "description", Message: "is required", Code: "required"})
		}
		if f.Value.LessThan(minFactorValue) || f.Value.GreaterThan(maxFactorValue) {
			errs = append(errs, models.FieldError{Field: prefix + "value", Message: "must be between -1 and 1", Code: "range"})
		}

		if _, dup := seen[f.Key()]; dup {
			errs = append(errs, models.FieldError{Field: prefix + "number", Message: "duplicate factor in request", Code: "unique"})
		}
		seen[f.Key()] = struct{}{}
	}

	return errs
}
