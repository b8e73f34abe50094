package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
)

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	previous := otel.GetMeterProvider()
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(previous) })
	return reader
}

// requestCounts sums http.server.request.total by route and status.
func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[[2]string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := make(map[[2]string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http.server.request.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("http.route"))
				status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
				counts[[2]string{route.AsString(), status.AsString()}] += dp.Value
			}
		}
	}
	return counts
}

func TestMetrics_GroupsByRoutePattern(t *testing.T) {
	reader := setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := capacityRouter(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}, metrics.Middleware())

	for _, target := range []string{"/v1/routes/rt_1", "/v1/routes/rt_2", "/v1/routes/rt_3"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, http.NoBody))
	}
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/capacity:preview", http.NoBody))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/nowhere", http.NoBody))

	counts := requestCounts(t, reader)
	assert.Equal(t, int64(3), counts[[2]string{"/v1/routes/{routeId}", "200"}])
	assert.Equal(t, int64(1), counts[[2]string{"/v1/capacity:preview", "422"}])
	assert.Len(t, counts, 3)
}

func TestMetrics_UnmatchedWithoutRouter(t *testing.T) {
	reader := setupTestMeter(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	counts := requestCounts(t, reader)
	assert.Equal(t, int64(1), counts[[2]string{"unmatched", "200"}])
}

func TestDependencyMetrics_Record(t *testing.T) {
	dm, err := middleware.NewDependencyMetrics()
	require.NoError(t, err)

	dm.RecordCacheHit("factor-catalog", "snapshot")
	dm.RecordCacheMiss("factor-catalog", "snapshot")
	dm.RecordRequest("factor-catalog", "list", 15*time.Millisecond, nil)
	dm.RecordRequest("factor-catalog", "list", time.Second, errors.New("connection refused"))
}
