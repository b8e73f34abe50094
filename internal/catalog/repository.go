package catalog

import "context"

// Repository defines the interface for factor persistence.
type Repository interface {
	// List returns all factors.
	List(ctx context.Context) ([]Factor, error)

	// Upsert creates or replaces the given factors atomically.
	Upsert(ctx context.Context, factors []Factor) error
}
