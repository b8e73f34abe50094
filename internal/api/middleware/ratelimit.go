package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
)

// RateLimitConfig describes one rate-limit tier.
type RateLimitConfig struct {
	// Name identifies the tier in 429 responses.
	Name         string
	RequestLimit int
	WindowLength time.Duration
}

// Rate-limit tiers.
var (
	// AuthRateLimit guards register and login, keyed by client IP.
	AuthRateLimit = RateLimitConfig{Name: "auth", RequestLimit: 10, WindowLength: time.Minute}

	// CalculationRateLimit covers requests that run the capacity calculator:
	// route create and update and capacity:preview.
	CalculationRateLimit = RateLimitConfig{Name: "calculation", RequestLimit: 30, WindowLength: time.Minute}

	// CatalogWriteRateLimit covers admin factor writes. Every accepted write
	// queues a recalculation of all stored routes.
	CatalogWriteRateLimit = RateLimitConfig{Name: "catalog-write", RequestLimit: 5, WindowLength: time.Minute}

	// StandardRateLimit covers reads and the remaining account endpoints.
	StandardRateLimit = RateLimitConfig{Name: "standard", RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByIP limits requests per client IP. It relies on chi's RealIP
// middleware for proxied requests.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

// RateLimitByUser limits requests per authenticated user, falling back to
// the client IP when no principal is present.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByUserOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

func keyByUserOrIP(r *http.Request) (string, error) {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes a 429 problem naming the tier. httprate does not
// expose the window reset, so Retry-After is the full window.
func limitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))
	detail := fmt.Sprintf("%s rate limit of %d requests per %s exceeded",
		cfg.Name, cfg.RequestLimit, cfg.WindowLength)

	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), detail)
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", retryAfter)
		w.Header().Set("X-RateLimit-Tier", cfg.Name)
		problem.Write(w)
	}
}
