package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

// InMemoryRepository is an in-memory implementation of Repository for
// tests and local development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	factors map[capacity.FactorKey]Factor
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		factors: make(map[capacity.FactorKey]Factor),
	}
}

// NewSeededInMemoryRepository creates a repository holding DefaultFactors.
func NewSeededInMemoryRepository() *InMemoryRepository {
	repo := NewInMemoryRepository()
	now := time.Now()
	for _, f := range DefaultFactors() {
		f.UpdatedAt = now
		repo.factors[f.Key()] = f
	}
	return repo
}

// List returns all factors.
func (r *InMemoryRepository) List(_ context.Context) ([]Factor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Factor, 0, len(r.factors))
	for _, f := range r.factors {
		result = append(result, f)
	}
	sortFactors(result)
	return result, nil
}

// Upsert creates or replaces the given factors.
func (r *InMemoryRepository) Upsert(_ context.Context, factors []Factor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, f := range factors {
		f.UpdatedAt = now
		r.factors[f.Key()] = f
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
