package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, func()) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return sr, func() {
		_ = tp.Shutdown(context.Background())
	}
}

func TestTracing_NamesSpanAfterRoutePattern(t *testing.T) {
	sr, cleanup := setupTestTracer()
	defer cleanup()

	handler := capacityRouter(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
		w.WriteHeader(http.StatusOK)
	}, middleware.RequestID, middleware.Tracing("recreationcalc-api"))

	for _, id := range []string{"rt_1", "rt_2"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/routes/"+id, http.NoBody)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	spans := sr.Ended()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, "GET /v1/routes/{routeId}", span.Name())
		assert.Equal(t, trace.SpanKindServer, span.SpanKind())

		route, ok := spanAttr(span, "http.route")
		require.True(t, ok)
		assert.Equal(t, "/v1/routes/{routeId}", route.AsString())

		service, ok := spanAttr(span, "service.name")
		require.True(t, ok)
		assert.Equal(t, "recreationcalc-api", service.AsString())

		requestID, ok := spanAttr(span, "request.id")
		require.True(t, ok)
		assert.Contains(t, requestID.AsString(), "req_")
	}
}

func TestTracing_CarriesCapacityAnnotations(t *testing.T) {
	sr, cleanup := setupTestTracer()
	defer cleanup()

	handler := capacityRouter(func(w http.ResponseWriter, r *http.Request) {
		middleware.Annotate(r.Context(),
			middleware.AttrRouteID.String(chi.URLParam(r, "routeId")),
			middleware.AttrTimeModel.String("unlimited_time"),
			middleware.AttrCatalogStale.Bool(true),
		)
		w.WriteHeader(http.StatusOK)
	}, middleware.Tracing("recreationcalc-api"))

	req := httptest.NewRequest(http.MethodPut, "/v1/routes/rt_77", http.NoBody)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "PUT /v1/routes/{routeId}", spans[0].Name())

	routeID, ok := spanAttr(spans[0], middleware.AttrRouteID)
	require.True(t, ok)
	assert.Equal(t, "rt_77", routeID.AsString())

	model, ok := spanAttr(spans[0], middleware.AttrTimeModel)
	require.True(t, ok)
	assert.Equal(t, "unlimited_time", model.AsString())

	stale, ok := spanAttr(spans[0], middleware.AttrCatalogStale)
	require.True(t, ok)
	assert.True(t, stale.AsBool())
}

func TestTracing_PropagatesContext(t *testing.T) {
	sr, cleanup := setupTestTracer()
	defer cleanup()

	handler := capacityRouter(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, middleware.Tracing("recreationcalc-api"))

	req := httptest.NewRequest(http.MethodPost, "/v1/capacity:preview", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /v1/capacity:preview", spans[0].Name())
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", spans[0].Parent().SpanID().String())
}

func TestTracing_StatusCodes(t *testing.T) {
	tests := []struct {
		status    int
		errStatus bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr, cleanup := setupTestTracer()
			defer cleanup()

			handler := capacityRouter(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}, middleware.Tracing("recreationcalc-api"))

			req := httptest.NewRequest(http.MethodGet, "/v1/routes/rt_1", http.NoBody)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			spans := sr.Ended()
			require.Len(t, spans, 1)

			code, ok := spanAttr(spans[0], "http.response.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), code.AsInt64())

			if tt.errStatus {
				assert.Equal(t, codes.Error, spans[0].Status().Code)
			} else {
				assert.NotEqual(t, codes.Error, spans[0].Status().Code)
			}
		})
	}
}

func TestTracing_KeepsPathWithoutRouter(t *testing.T) {
	sr, cleanup := setupTestTracer()
	defer cleanup()

	handler := middleware.Tracing("recreationcalc-api")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "https")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /healthz", spans[0].Name())

	_, ok := spanAttr(spans[0], "http.route")
	assert.False(t, ok)

	scheme, ok := spanAttr(spans[0], "url.scheme")
	require.True(t, ok)
	assert.Equal(t, "https", scheme.AsString())
}
