package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/validation"
)

// Paging limits.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// CatalogSource provides factor catalog snapshots.
type CatalogSource interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// ServiceConfig holds configuration for the route service.
type ServiceConfig struct {
	Repository Repository
	Catalog    CatalogSource
	Calculator *capacity.Calculator
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// Service provides route operations. Every create or update produces a
// new capacity calculation; stored calculations are never modified.
type Service struct {
	repo       Repository
	catalog    CatalogSource
	calculator *capacity.Calculator
	logger     zerolog.Logger
	clock      func() time.Time
}

// NewService creates a new route service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Calculator == nil {
		cfg.Calculator = capacity.NewCalculator(capacity.CalculatorConfig{})
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		repo:       cfg.Repository,
		catalog:    cfg.Catalog,
		calculator: cfg.Calculator,
		logger:     cfg.Logger.With().Str("component", "route").Logger(),
		clock:      cfg.Clock,
	}
}

// Create validates the input, calculates capacity and stores a new route.
func (s *Service) Create(ctx context.Context, userID string, input *models.RouteInput) (*models.Route, error) {
	if fieldErrors := validation.ValidateStruct(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	snapshot, err := s.snapshotFor(ctx, toSelection(input.Factors))
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	rt := &Route{
		ID:        "rte_" + uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
	}
	applyInput(rt, input, now)
	rt.Calculation = s.calculator.Calculate(rt.Params, rt.TimeModel, rt.Selection, asCatalog(snapshot))

	if err := s.repo.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("create route: %w", err)
	}

	s.logCalculation(rt, "route created")
	result := toAPIRoute(rt, snapshot)
	return &result, nil
}

// List retrieves a page of the user's routes, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int, cursor string) (*models.PagedRoutes, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	result, err := s.repo.List(ctx, userID, ListOptions{Limit: limit, Cursor: cursor})
	if err != nil {
		return nil, err
	}

	items := make([]models.RouteSummary, 0, len(result.Items))
	for _, rt := range result.Items {
		items = append(items, toAPISummary(rt))
	}

	var nextCursor *string
	if result.NextCursor != "" {
		nextCursor = &result.NextCursor
	}

	return &models.PagedRoutes{
		Items: items,
		Meta: models.PagedResponseMeta{
			Limit:      limit,
			NextCursor: nextCursor,
		},
	}, nil
}

// Get retrieves a route by ID for a user. Routes owned by someone else are
// reported as not found.
func (s *Service) Get(ctx context.Context, userID, routeID string) (*models.Route, error) {
	rt, err := s.repo.GetByUserAndID(ctx, userID, routeID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.snapshotFor(ctx, rt.Selection)
	if err != nil {
		return nil, err
	}

	result := toAPIRoute(rt, snapshot)
	return &result, nil
}

// Update replaces the route inputs and stores a new calculation.
func (s *Service) Update(ctx context.Context, userID, routeID string, input *models.RouteInput) (*models.Route, error) {
	rt, err := s.repo.GetByUserAndID(ctx, userID, routeID)
	if err != nil {
		return nil, err
	}

	if fieldErrors := validation.ValidateStruct(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	snapshot, err := s.snapshotFor(ctx, toSelection(input.Factors))
	if err != nil {
		return nil, err
	}

	applyInput(rt, input, s.clock().UTC())
	rt.Calculation = s.calculator.Calculate(rt.Params, rt.TimeModel, rt.Selection, asCatalog(snapshot))

	if err := s.repo.Update(ctx, rt); err != nil {
		return nil, fmt.Errorf("update route: %w", err)
	}

	s.logCalculation(rt, "route updated")
	result := toAPIRoute(rt, snapshot)
	return &result, nil
}

// Delete deletes a route for a user.
func (s *Service) Delete(ctx context.Context, userID, routeID string) error {
	// Verify ownership
	if _, err := s.repo.GetByUserAndID(ctx, userID, routeID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, routeID); err != nil {
		return fmt.Errorf("delete route: %w", err)
	}

	s.logger.Info().Str("route_id", routeID).Msg("route deleted")
	return nil
}

// Recalculate stores a fresh calculation for a route using the current
// catalog. It is used by the worker after catalog changes. Unlike Create,
// it fails when the catalog is unavailable so that a stored calculation
// is never replaced by one with neutral coefficients.
func (s *Service) Recalculate(ctx context.Context, routeID string) (*capacity.Calculation, error) {
	rt, err := s.repo.Get(ctx, routeID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	calc := s.calculator.Calculate(rt.Params, rt.TimeModel, rt.Selection, snapshot)
	if err := s.repo.SaveCalculation(ctx, rt.ID, calc); err != nil {
		return nil, fmt.Errorf("save calculation: %w", err)
	}

	rt.Calculation = calc
	s.logCalculation(rt, "route recalculated")
	return calc, nil
}

// ListIDs returns a page of route IDs for batch recalculation.
func (s *Service) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	return s.repo.ListIDs(ctx, afterID, limit)
}

// Preview computes capacity for the given inputs without storing anything.
func (s *Service) Preview(ctx context.Context, input *models.CapacityPreviewRequest) (*models.CapacityPreview, error) {
	if fieldErrors := validation.ValidateStruct(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	model := capacity.TimeModel(input.TimeModel)
	params := toParameters(input.Parameters)
	selection := toSelection(input.Factors)

	snapshot, err := s.snapshotFor(ctx, selection)
	if err != nil {
		return nil, err
	}

	calc := s.calculator.Calculate(params, model, selection, asCatalog(snapshot))

	preview := &models.CapacityPreview{
		Calculation:     toAPICalculation(model, calc),
		Recommendations: []models.Factor{},
	}
	switch {
	case snapshot != nil:
		preview.Recommendations = catalog.ToAPIFactors(snapshot.Selected(selection))
		preview.CatalogStale = snapshot.Stale
	case !selection.IsEmpty():
		preview.CatalogUnavailable = true
	}
	return preview, nil
}

// snapshotFor returns the catalog snapshot needed for selection. It
// returns nil without error when nothing is selected or the catalog is
// unavailable; the calculator then falls back to neutral coefficients.
func (s *Service) snapshotFor(ctx context.Context, selection capacity.FactorSelection) (*catalog.Snapshot, error) {
	if selection.IsEmpty() {
		return nil, nil
	}

	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrCatalogUnavailable) {
			s.logger.Warn().Err(err).Msg("factor catalog unavailable, calculating with neutral coefficients")
			return nil, nil
		}
		return nil, err
	}
	return snapshot, nil
}

// asCatalog keeps a nil snapshot from becoming a non-nil capacity.Catalog.
func asCatalog(snapshot *catalog.Snapshot) capacity.Catalog {
	if snapshot == nil {
		return nil
	}
	return snapshot
}

func (s *Service) logCalculation(rt *Route, msg string) {
	event := s.logger.Info().
		Str("route_id", rt.ID).
		Str("time_model", string(rt.TimeModel)).
		Str("cfn", rt.Calculation.Coefficients.CFN.StringFixed(2)).
		Str("m", rt.Calculation.Coefficients.M.StringFixed(2))
	if rt.Calculation.Result != nil {
		event = event.Int("bcc", rt.Calculation.Result.BaseCapacity())
	}
	event.Msg(msg)
}

func applyInput(rt *Route, input *models.RouteInput, now time.Time) {
	rt.Name = input.Name
	rt.Kind = input.Kind
	rt.TimeModel = capacity.TimeModel(input.TimeModel)
	rt.Params = toParameters(input.Parameters)
	rt.Selection = toSelection(input.Factors)
	rt.UpdatedAt = now
}

func toParameters(in models.RouteParametersInput) capacity.RouteParameters {
	return capacity.RouteParameters{
		AvailableHoursPerDay: in.AvailableHoursPerDay,
		SeasonalDays:         in.SeasonalDays,
		GroupSize:            in.GroupSize,
		TripLengthDays:       in.TripLengthDays,
		SegmentTimes:         in.SegmentTimes,
		SegmentDistances:     in.SegmentDistances,
		GroupSpacings:        in.GroupSpacings,
		Speeds:               in.Speeds,
	}
}

func toSelection(in models.FactorSelection) capacity.FactorSelection {
	return capacity.FactorSelection{
		Ecological: in.Ecological,
		Management: in.Management,
	}
}
