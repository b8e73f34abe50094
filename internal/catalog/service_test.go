package catalog_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/resilience"
)

type flakyRepository struct {
	catalog.Repository
	failing atomic.Bool
	lists   atomic.Int32
}

func (r *flakyRepository) List(ctx context.Context) ([]catalog.Factor, error) {
	r.lists.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.failing.Load() {
		return nil, errors.New("connection refused")
	}
	return r.Repository.List(ctx)
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *recordingPublisher) PublishCatalogUpdated(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

type countingMetrics struct {
	mu       sync.Mutex
	hits     int
	misses   int
	requests int
	failures int
}

func (m *countingMetrics) RecordRequest(_, _ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	if err != nil {
		m.failures++
	}
}

func (m *countingMetrics) RecordCacheHit(_, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *countingMetrics) RecordCacheMiss(_, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func newService(repo catalog.Repository, ttl time.Duration, pub catalog.Publisher) *catalog.Service {
	return catalog.NewService(catalog.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   ttl,
		Publisher:  pub,
		Registry:   resilience.NewRegistry(),
	})
}

func TestService_SnapshotImplementsCatalog(t *testing.T) {
	svc := newService(catalog.NewSeededInMemoryRepository(), time.Minute, nil)

	snapshot, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snapshot.Stale)
	assert.Equal(t, len(catalog.DefaultFactors()), snapshot.Len())

	value, ok := snapshot.Lookup(capacity.Ecological, 1)
	require.True(t, ok)
	assert.True(t, value.Equal(decimal.RequireFromString("-0.10")))

	_, ok = snapshot.Lookup(capacity.Management, 99)
	assert.False(t, ok)

	cfn := capacity.ComputeCoefficient(capacity.Ecological, []int{1, 2}, snapshot, nil)
	assert.Equal(t, "0.82", cfn.StringFixed(2))
}

func TestService_SnapshotIsCached(t *testing.T) {
	repo := &flakyRepository{Repository: catalog.NewSeededInMemoryRepository()}
	svc := newService(repo, time.Minute, nil)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	second, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), repo.lists.Load())
}

func TestService_RecordsMetrics(t *testing.T) {
	repo := &flakyRepository{Repository: catalog.NewSeededInMemoryRepository()}
	metrics := &countingMetrics{}
	svc := catalog.NewService(catalog.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
		Metrics:    metrics,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Snapshot(ctx)
		require.NoError(t, err)
	}

	svc.Invalidate()
	repo.failing.Store(true)
	snapshot, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snapshot.Stale)

	assert.Equal(t, 2, metrics.hits)
	assert.Equal(t, 2, metrics.misses)
	assert.Equal(t, 2, metrics.requests)
	assert.Equal(t, 1, metrics.failures)
}

func TestService_StaleIfError(t *testing.T) {
	repo := &flakyRepository{Repository: catalog.NewSeededInMemoryRepository()}
	svc := newService(repo, time.Millisecond, nil)
	ctx := context.Background()

	fresh, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	repo.failing.Store(true)
	time.Sleep(5 * time.Millisecond)

	stale, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, fresh.LoadedAt, stale.LoadedAt)
	assert.Equal(t, fresh.Len(), stale.Len())
}

func TestService_StaleAfterUpsertOutage(t *testing.T) {
	repo := &flakyRepository{Repository: catalog.NewSeededInMemoryRepository()}
	svc := newService(repo, time.Hour, nil)
	ctx := context.Background()

	fresh, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	err = svc.Upsert(ctx, []catalog.Factor{{
		Kind:        capacity.Management,
		Number:      1,
		Description: "Insufficient ranger staffing",
		Value:       decimal.RequireFromString("-0.25"),
	}})
	require.NoError(t, err)

	repo.failing.Store(true)

	stale, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, fresh.LoadedAt, stale.LoadedAt)

	value, ok := stale.Lookup(capacity.Management, 1)
	require.True(t, ok)
	assert.True(t, value.Equal(decimal.RequireFromString("-0.15")))
}

func TestService_ReloadSurvivesCallerCancellation(t *testing.T) {
	repo := &flakyRepository{Repository: catalog.NewSeededInMemoryRepository()}
	svc := newService(repo, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snapshot, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snapshot.Stale)
	assert.Equal(t, len(catalog.DefaultFactors()), snapshot.Len())
}

func TestService_Unavailable(t *testing.T) {
	repo := &flakyRepository{Repository: catalog.NewSeededInMemoryRepository()}
	repo.failing.Store(true)
	svc := newService(repo, time.Minute, nil)

	_, err := svc.Snapshot(context.Background())
	require.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
}

func TestService_Recommendations(t *testing.T) {
	svc := newService(catalog.NewSeededInMemoryRepository(), time.Minute, nil)
	ctx := context.Background()

	got, err := svc.Recommendations(ctx, capacity.FactorSelection{
		Ecological: []int{3, 1, 3, 42},
		Management: []int{2},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, capacity.Ecological, got[0].Kind)
	assert.Equal(t, 1, got[0].Number)
	assert.Equal(t, 3, got[1].Number)
	assert.Equal(t, capacity.Management, got[2].Kind)
	assert.NotEmpty(t, got[2].Recommendation)

	empty, err := svc.Recommendations(ctx, capacity.FactorSelection{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_UpsertInvalidatesAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(catalog.NewSeededInMemoryRepository(), time.Hour, pub)
	ctx := context.Background()

	before, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	err = svc.Upsert(ctx, []catalog.Factor{{
		Kind:           capacity.Ecological,
		Number:         1,
		Description:    "Severe soil erosion",
		Value:          decimal.RequireFromString("-0.30"),
		Recommendation: "Close the trail for restoration.",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)

	after, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotSame(t, before, after)

	value, ok := after.Lookup(capacity.Ecological, 1)
	require.True(t, ok)
	assert.True(t, value.Equal(decimal.RequireFromString("-0.30")))
}

func TestService_UpsertPublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(catalog.NewInMemoryRepository(), time.Hour, pub)

	err := svc.Upsert(context.Background(), []catalog.Factor{{
		Kind: capacity.Management, Number: 1, Description: "Staffing", Value: decimal.RequireFromString("-0.1"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)
}

func TestService_UpsertValidation(t *testing.T) {
	svc := newService(catalog.NewInMemoryRepository(), time.Hour, nil)

	err := svc.Upsert(context.Background(), []catalog.Factor{
		{Kind: "social", Number: 0, Description: " ", Value: decimal.RequireFromString("1.5")},
		{Kind: capacity.Ecological, Number: 2, Description: "ok", Value: decimal.Zero},
		{Kind: capacity.Ecological, Number: 2, Description: "dup", Value: decimal.Zero},
	})

	var validationErr *catalog.ValidationError
	require.ErrorAs(t, err, &validationErr)

	fields := map[string]string{}
	for _, fe := range validationErr.Errors {
		fields[fe.Field] = fe.Code
	}
	assert.Equal(t, "factor_kind", fields["factors[0].kind"])
	assert.Equal(t, "gte", fields["factors[0].number"])
	assert.Equal(t, "required", fields["factors[0].description"])
	assert.Equal(t, "range", fields["factors[0].value"])
	assert.Equal(t, "unique", fields["factors[2].number"])

	err = svc.Upsert(context.Background(), nil)
	require.ErrorAs(t, err, &validationErr)
}
