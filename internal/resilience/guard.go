package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// GuardConfig holds configuration for a Guard.
type GuardConfig struct {
	// Name identifies the guarded dependency.
	Name string

	// MaxRetries is the maximum number of retry attempts.
	// Default: 2
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 50ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 1 second
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives health updates. Optional.
	Registry *Registry
}

// DefaultGuardConfig returns the default guard configuration.
func DefaultGuardConfig(name string) GuardConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return GuardConfig{
		Name:            name,
		MaxRetries:      2,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Guard runs operations against a dependency through a circuit breaker
// with exponential-backoff retries.
type Guard[T any] struct {
	breaker *gobreaker.CircuitBreaker[T]
	config  GuardConfig
}

// NewGuard creates a guard and registers it with cfg.Registry if set.
func NewGuard[T any](cfg GuardConfig) *Guard[T] {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 50 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
		cbConfig.Name = cfg.Name
	}

	g := &Guard[T]{
		breaker: NewCircuitBreaker[T](cbConfig),
		config:  cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, g)
	}

	return g
}

// Execute runs op. Failures are retried with backoff until MaxRetries is
// exhausted, the context ends, or the breaker opens. Errors wrapped with
// Permanent are not retried.
func (g *Guard[T]) Execute(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.config.InitialInterval
	bo.MaxInterval = g.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, g.config.MaxRetries), ctx)

	var result T
	operation := func() error {
		v, err := g.breaker.Execute(func() (T, error) {
			return op(ctx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			return err
		}
		result = v
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		g.record(err)
		var zero T
		return zero, err
	}

	g.record(nil)
	return result, nil
}

func (g *Guard[T]) record(err error) {
	if g.config.Registry == nil {
		return
	}
	if err != nil {
		g.config.Registry.RecordFailure(g.config.Name, err)
		return
	}
	g.config.Registry.RecordSuccess(g.config.Name)
}

// Name returns the guarded dependency name.
func (g *Guard[T]) Name() string {
	return g.config.Name
}

// State returns the current circuit breaker state.
func (g *Guard[T]) State() gobreaker.State {
	return g.breaker.State()
}

// Counts returns the current circuit breaker counts.
func (g *Guard[T]) Counts() gobreaker.Counts {
	return g.breaker.Counts()
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
