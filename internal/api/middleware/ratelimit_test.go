package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
)

func TestRateLimitTiers(t *testing.T) {
	assert.Equal(t, "auth", middleware.AuthRateLimit.Name)
	assert.Equal(t, 10, middleware.AuthRateLimit.RequestLimit)

	assert.Equal(t, "calculation", middleware.CalculationRateLimit.Name)
	assert.Equal(t, 30, middleware.CalculationRateLimit.RequestLimit)

	assert.Equal(t, "catalog-write", middleware.CatalogWriteRateLimit.Name)
	assert.Less(t, middleware.CatalogWriteRateLimit.RequestLimit, middleware.CalculationRateLimit.RequestLimit)

	assert.Equal(t, "standard", middleware.StandardRateLimit.Name)
	assert.Greater(t, middleware.StandardRateLimit.RequestLimit, middleware.CalculationRateLimit.RequestLimit)
}

func TestRateLimitByUser_PreviewTier(t *testing.T) {
	cfg := middleware.CalculationRateLimit
	cfg.RequestLimit = 2

	handler := capacityRouter(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, middleware.RequestID, middleware.Auth(createTestAuthService(t)), middleware.RateLimitByUser(cfg))

	preview := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/capacity:preview", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+token)
		req.RemoteAddr = "10.1.0.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	planner := generateToken(t, testUser(), false)
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, preview(planner).Code, "preview %d", i+1)
	}

	limited := preview(planner)
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, "calculation", limited.Header().Get("X-RateLimit-Tier"))
	assert.Equal(t, "application/problem+json", limited.Header().Get("Content-Type"))

	problem := decodeProblem(t, limited.Body)
	assert.Equal(t, float64(http.StatusTooManyRequests), problem["status"])
	assert.Contains(t, problem["detail"], "calculation rate limit of 2 requests")
	assert.Equal(t, "/v1/capacity:preview", problem["instance"])
	assert.Equal(t, limited.Header().Get("X-Request-Id"), problem["traceId"])

	// Another planner behind the same address has its own budget.
	other := testUser()
	other.ID = "usr_otherplanner"
	assert.Equal(t, http.StatusOK, preview(generateToken(t, other, false)).Code)
}

func TestRateLimitByUser_CatalogWriteRetryAfter(t *testing.T) {
	cfg := middleware.RateLimitConfig{Name: "catalog-write", RequestLimit: 1, WindowLength: 90 * time.Second}

	handler := middleware.RateLimitByUser(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	put := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/v1/admin/factors", http.NoBody)
		req.RemoteAddr = "10.2.0.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, put().Code)
	limited := put()
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "90", limited.Header().Get("Retry-After"))
	assert.Equal(t, "catalog-write", limited.Header().Get("X-RateLimit-Tier"))
}

func TestRateLimitByIP_SeparatesClients(t *testing.T) {
	cfg := middleware.AuthRateLimit
	cfg.RequestLimit = 1

	handler := middleware.RateLimitByIP(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	login := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", http.NoBody)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, login("10.3.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, login("10.3.0.1:1001"))
	assert.Equal(t, http.StatusOK, login("10.3.0.2:1000"))
}
