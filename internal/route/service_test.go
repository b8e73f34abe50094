package route_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/resilience"
	"github.com/recreationcalc/recreationcalc/internal/route"
)

type fixture struct {
	repo    *route.InMemoryRepository
	catalog *catalog.Service
	service *route.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	repo := route.NewInMemoryRepository()
	catalogSvc := catalog.NewService(catalog.ServiceConfig{
		Repository: catalog.NewSeededInMemoryRepository(),
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Hour,
		Registry:   resilience.NewRegistry(),
	})

	return &fixture{
		repo:    repo,
		catalog: catalogSvc,
		service: route.NewService(route.ServiceConfig{
			Repository: repo,
			Catalog:    catalogSvc,
			Calculator: capacity.NewCalculator(capacity.CalculatorConfig{Clock: clock}),
			Logger:     zerolog.Nop(),
			Clock:      clock,
		}),
	}
}

func segmentTimes(values ...string) []decimal.NullDecimal {
	out := make([]decimal.NullDecimal, len(values))
	for i, v := range values {
		if v == "" {
			continue
		}
		out[i] = decimal.NewNullDecimal(decimal.RequireFromString(v))
	}
	return out
}

func fixedTimeInput() *models.RouteInput {
	return &models.RouteInput{
		Name:      "Lake trail",
		Kind:      "single_day",
		TimeModel: "fixed_time",
		Parameters: models.RouteParametersInput{
			AvailableHoursPerDay: decimal.RequireFromString("10"),
			SeasonalDays:         120,
			GroupSize:            4,
			TripLengthDays:       1,
			SegmentTimes:         segmentTimes("2", "3"),
			SegmentDistances:     []decimal.Decimal{decimal.RequireFromString("4.5"), decimal.RequireFromString("6")},
		},
		Factors: models.FactorSelection{
			Ecological: []int{1, 2},
			Management: []int{2},
		},
	}
}

func intValue(t *testing.T, p *int) int {
	t.Helper()
	require.NotNil(t, p)
	return *p
}

func TestService_CreateFixedTime(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Create(context.Background(), "usr_1", fixedTimeInput())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.ID, "rte_"))
	assert.Equal(t, "Lake trail", result.Name)
	assert.Equal(t, "10", result.Parameters.AvailableHoursPerDay.String())
	require.Len(t, result.Parameters.SegmentTimes, 2)
	assert.Equal(t, "3", result.Parameters.SegmentTimes[1].String())

	calc := result.Calculation
	require.NotNil(t, calc)
	assert.True(t, calc.Computable)
	assert.Equal(t, "0.82", calc.Coefficients.CFN.String())
	assert.Equal(t, "0.95", calc.Coefficients.M.String())
	require.NotNil(t, calc.AverageSegmentTime)
	assert.Equal(t, "2.5", calc.AverageSegmentTime.String())
	assert.Equal(t, 4, intValue(t, calc.MaxGroups))
	assert.Equal(t, 16, intValue(t, calc.BCC))
	assert.Equal(t, 13, intValue(t, calc.PCC))
	assert.Equal(t, 12, intValue(t, calc.RCC))

	require.Len(t, result.Recommendations, 3)
	assert.Equal(t, "ecological", result.Recommendations[0].Kind)
	assert.Equal(t, "management", result.Recommendations[2].Kind)

	stored, err := f.repo.Get(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", stored.UserID)
	require.NotNil(t, stored.Calculation)
	assert.Equal(t, 16, stored.Calculation.Result.BaseCapacity())
}

func TestService_CreateUnlimitedTime(t *testing.T) {
	f := newFixture(t)

	input := fixedTimeInput()
	input.Kind = "multi_day"
	input.TimeModel = "unlimited_time"
	input.Parameters.SeasonalDays = 100
	input.Parameters.TripLengthDays = 7
	input.Parameters.GroupSize = 3

	result, err := f.service.Create(context.Background(), "usr_1", input)
	require.NoError(t, err)

	calc := result.Calculation
	require.NotNil(t, calc)
	assert.True(t, calc.Computable)
	assert.Equal(t, 42, intValue(t, calc.BCC))
	assert.Nil(t, calc.MaxGroups)
	assert.Nil(t, calc.PCC)
	assert.Nil(t, calc.RCC)
}

func TestService_CreateWithoutComputableFigures(t *testing.T) {
	f := newFixture(t)

	input := fixedTimeInput()
	input.Parameters.SegmentTimes = segmentTimes("", "")

	result, err := f.service.Create(context.Background(), "usr_1", input)
	require.NoError(t, err)

	calc := result.Calculation
	require.NotNil(t, calc)
	assert.False(t, calc.Computable)
	assert.Nil(t, calc.BCC)
	assert.Equal(t, "0.82", calc.Coefficients.CFN.String())

	_, err = f.repo.Get(context.Background(), result.ID)
	require.NoError(t, err)
}

func TestService_CreateValidationErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		mutate    func(*models.RouteInput)
		wantField string
	}{
		{"missing name", func(in *models.RouteInput) { in.Name = "" }, "name"},
		{"name too long", func(in *models.RouteInput) { in.Name = strings.Repeat("a", 256) }, "name"},
		{"unknown kind", func(in *models.RouteInput) { in.Kind = "weekend" }, "kind"},
		{"unknown time model", func(in *models.RouteInput) { in.TimeModel = "flexible" }, "timeModel"},
		{"hours above a day", func(in *models.RouteInput) {
			in.Parameters.AvailableHoursPerDay = decimal.RequireFromString("24.5")
		}, "parameters.availableHoursPerDay"},
		{"zero hours", func(in *models.RouteInput) { in.Parameters.AvailableHoursPerDay = decimal.Zero }, "parameters.availableHoursPerDay"},
		{"zero group size", func(in *models.RouteInput) { in.Parameters.GroupSize = 0 }, "parameters.groupSize"},
		{"no segments", func(in *models.RouteInput) { in.Parameters.SegmentTimes = nil }, "parameters.segmentTimes"},
		{"negative segment", func(in *models.RouteInput) { in.Parameters.SegmentTimes = segmentTimes("-1") }, "parameters.segmentTimes[0]"},
		{"bad factor id", func(in *models.RouteInput) { in.Factors.Management = []int{0} }, "factors.management[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := fixedTimeInput()
			tt.mutate(input)

			_, err := f.service.Create(context.Background(), "usr_1", input)

			var validationErr *route.ValidationError
			require.ErrorAs(t, err, &validationErr)

			fields := make([]string, 0, len(validationErr.Errors))
			for _, fe := range validationErr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestService_GetOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, "usr_1", fixedTimeInput())
	require.NoError(t, err)

	got, err := f.service.Get(ctx, "usr_1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Len(t, got.Recommendations, 3)

	_, err = f.service.Get(ctx, "usr_2", created.ID)
	require.ErrorIs(t, err, route.ErrRouteNotFound)

	_, err = f.service.Get(ctx, "usr_1", "rte_missing")
	require.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestService_ListNewestFirstWithCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		input := fixedTimeInput()
		input.Name = name
		created, err := f.service.Create(ctx, "usr_1", input)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	_, err := f.service.Create(ctx, "usr_2", fixedTimeInput())
	require.NoError(t, err)

	page, err := f.service.List(ctx, "usr_1", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "third", page.Items[0].Name)
	assert.Equal(t, "second", page.Items[1].Name)
	assert.Equal(t, 16, intValue(t, page.Items[0].BCC))
	require.NotNil(t, page.Meta.NextCursor)
	assert.Equal(t, ids[1], *page.Meta.NextCursor)

	next, err := f.service.List(ctx, "usr_1", 2, *page.Meta.NextCursor)
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "first", next.Items[0].Name)
	assert.Nil(t, next.Meta.NextCursor)
}

func TestService_ListClampsLimit(t *testing.T) {
	f := newFixture(t)

	page, err := f.service.List(context.Background(), "usr_1", 1000, "")
	require.NoError(t, err)
	assert.Equal(t, route.MaxPageSize, page.Meta.Limit)
	assert.Empty(t, page.Items)
}

func TestService_UpdateProducesNewCalculation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, "usr_1", fixedTimeInput())
	require.NoError(t, err)

	input := fixedTimeInput()
	input.Name = "Lake trail (extended)"
	input.Parameters.GroupSize = 8
	input.Factors = models.FactorSelection{}

	updated, err := f.service.Update(ctx, "usr_1", created.ID, input)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Lake trail (extended)", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.Time().After(created.UpdatedAt.Time()))

	calc := updated.Calculation
	require.NotNil(t, calc)
	assert.Equal(t, "1.00", calc.Coefficients.CFN.String())
	assert.Equal(t, 32, intValue(t, calc.BCC))
	assert.Equal(t, 32, intValue(t, calc.RCC))
	assert.True(t, calc.CreatedAt.Time().After(created.Calculation.CreatedAt.Time()))
	assert.Empty(t, updated.Recommendations)

	_, err = f.service.Update(ctx, "usr_2", created.ID, input)
	require.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, "usr_1", fixedTimeInput())
	require.NoError(t, err)

	err = f.service.Delete(ctx, "usr_2", created.ID)
	require.ErrorIs(t, err, route.ErrRouteNotFound)

	require.NoError(t, f.service.Delete(ctx, "usr_1", created.ID))

	_, err = f.service.Get(ctx, "usr_1", created.ID)
	require.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestService_RecalculateUsesCurrentCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, "usr_1", fixedTimeInput())
	require.NoError(t, err)

	err = f.catalog.Upsert(ctx, []catalog.Factor{{
		Kind:        capacity.Ecological,
		Number:      1,
		Description: "Soil erosion on the trail tread",
		Value:       decimal.RequireFromString("-0.42"),
	}})
	require.NoError(t, err)

	calc, err := f.service.Recalculate(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.50", calc.Coefficients.CFN.StringFixed(2))
	assert.Equal(t, 16, calc.Result.BaseCapacity())

	got, err := f.service.Get(ctx, "usr_1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.50", got.Calculation.Coefficients.CFN.String())
	assert.Equal(t, 8, intValue(t, got.Calculation.PCC))

	_, err = f.service.Recalculate(ctx, "rte_missing")
	require.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestService_PreviewDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := fixedTimeInput()
	preview, err := f.service.Preview(ctx, &models.CapacityPreviewRequest{
		TimeModel:  in.TimeModel,
		Parameters: in.Parameters,
		Factors:    in.Factors,
	})
	require.NoError(t, err)
	assert.Equal(t, 13, intValue(t, preview.Calculation.PCC))
	assert.Len(t, preview.Recommendations, 3)
	assert.False(t, preview.CatalogStale)

	ids, err := f.service.ListIDs(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = f.service.Preview(ctx, &models.CapacityPreviewRequest{TimeModel: "fixed_time"})
	var validationErr *route.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

type unavailableCatalog struct {
	calls int
}

func (c *unavailableCatalog) Snapshot(context.Context) (*catalog.Snapshot, error) {
	c.calls++
	return nil, fmt.Errorf("%w: %w", catalog.ErrCatalogUnavailable, errors.New("connection refused"))
}

type downFactorRepository struct {
	catalog.Repository
}

func (downFactorRepository) List(context.Context) ([]catalog.Factor, error) {
	return nil, errors.New("db down")
}

func TestService_CreateWhenCatalogUnavailable(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := route.NewService(route.ServiceConfig{
		Repository: repo,
		Catalog: catalog.NewService(catalog.ServiceConfig{
			Repository: downFactorRepository{Repository: catalog.NewInMemoryRepository()},
			Logger:     zerolog.Nop(),
		}),
		Logger: zerolog.Nop(),
	})
	ctx := context.Background()

	result, err := svc.Create(ctx, "usr_1", fixedTimeInput())
	require.NoError(t, err)

	calc := result.Calculation
	require.NotNil(t, calc)
	assert.Equal(t, "1.00", calc.Coefficients.CFN.String())
	assert.Equal(t, "1.00", calc.Coefficients.M.String())
	assert.Equal(t, 16, intValue(t, calc.BCC))
	assert.Equal(t, 16, intValue(t, calc.PCC))
	assert.Equal(t, 16, intValue(t, calc.RCC))
	assert.Empty(t, result.Recommendations)

	got, err := svc.Get(ctx, "usr_1", result.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Recommendations)

	updated, err := svc.Update(ctx, "usr_1", result.ID, fixedTimeInput())
	require.NoError(t, err)
	assert.Equal(t, 16, intValue(t, updated.Calculation.PCC))

	_, err = svc.Recalculate(ctx, result.ID)
	require.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
}

func TestService_CreateWithoutFactorsSkipsCatalog(t *testing.T) {
	unavailable := &unavailableCatalog{}
	svc := route.NewService(route.ServiceConfig{
		Repository: route.NewInMemoryRepository(),
		Catalog:    unavailable,
		Logger:     zerolog.Nop(),
	})

	input := fixedTimeInput()
	input.Factors = models.FactorSelection{}

	result, err := svc.Create(context.Background(), "usr_1", input)
	require.NoError(t, err)
	assert.Zero(t, unavailable.calls)
	assert.Equal(t, 16, intValue(t, result.Calculation.RCC))
}

func TestService_PreviewWhenCatalogUnavailable(t *testing.T) {
	svc := route.NewService(route.ServiceConfig{
		Repository: route.NewInMemoryRepository(),
		Catalog:    &unavailableCatalog{},
		Logger:     zerolog.Nop(),
	})

	in := fixedTimeInput()
	preview, err := svc.Preview(context.Background(), &models.CapacityPreviewRequest{
		TimeModel:  in.TimeModel,
		Parameters: in.Parameters,
		Factors:    in.Factors,
	})
	require.NoError(t, err)
	assert.True(t, preview.CatalogUnavailable)
	assert.False(t, preview.CatalogStale)
	assert.Empty(t, preview.Recommendations)
	assert.Equal(t, 16, intValue(t, preview.Calculation.PCC))
}

func TestInMemoryRepository_ListIDs(t *testing.T) {
	repo := route.NewInMemoryRepository()
	ctx := context.Background()

	for _, id := range []string{"rte_c", "rte_a", "rte_b"} {
		require.NoError(t, repo.Create(ctx, &route.Route{ID: id, UserID: "usr_1"}))
	}

	first, err := repo.ListIDs(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"rte_a", "rte_b"}, first)

	rest, err := repo.ListIDs(ctx, first[len(first)-1], 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"rte_c"}, rest)

	err = repo.SaveCalculation(ctx, "rte_missing", capacity.Assemble(capacity.NeutralCoefficients(), nil, time.Now()))
	require.ErrorIs(t, err, route.ErrRouteNotFound)
}
