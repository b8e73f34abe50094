package route

import (
	"context"
	"sort"
	"sync"

	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	routes map[string]*Route
}

// NewInMemoryRepository creates a new in-memory route repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		routes: make(map[string]*Route),
	}
}

// Get retrieves a route by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.routes[id]
	if !ok {
		return nil, ErrRouteNotFound
	}
	return rt.clone(), nil
}

// GetByUserAndID retrieves a route by user ID and route ID.
func (r *InMemoryRepository) GetByUserAndID(_ context.Context, userID, routeID string) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.routes[routeID]
	if !ok || rt.UserID != userID {
		return nil, ErrRouteNotFound
	}
	return rt.clone(), nil
}

// List retrieves a user's routes, newest first.
func (r *InMemoryRepository) List(_ context.Context, userID string, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var routes []*Route
	for _, rt := range r.routes {
		if rt.UserID == userID {
			routes = append(routes, rt.clone())
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		if !routes[i].CreatedAt.Equal(routes[j].CreatedAt) {
			return routes[i].CreatedAt.After(routes[j].CreatedAt)
		}
		return routes[i].ID > routes[j].ID
	})

	if opts.Cursor != "" {
		start := len(routes)
		for i, rt := range routes {
			if rt.ID == opts.Cursor {
				start = i + 1
				break
			}
		}
		routes = routes[start:]
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	result := &ListResult{
		Items: routes,
	}

	if len(routes) > limit {
		result.Items = routes[:limit]
		result.NextCursor = routes[limit-1].ID
	}

	return result, nil
}

// ListIDs returns route IDs in ascending order after afterID.
func (r *InMemoryRepository) ListIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.routes))
	for id := range r.routes {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Create stores a new route.
func (r *InMemoryRepository) Create(_ context.Context, rt *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[rt.ID] = rt.clone()
	return nil
}

// Update replaces an existing route.
func (r *InMemoryRepository) Update(_ context.Context, rt *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.routes[rt.ID]
	if !ok {
		return ErrRouteNotFound
	}

	cp := rt.clone()
	if cp.Calculation == nil {
		cp.Calculation = existing.Calculation
	}
	r.routes[rt.ID] = cp
	return nil
}

// SaveCalculation replaces the latest calculation of a route.
func (r *InMemoryRepository) SaveCalculation(_ context.Context, routeID string, calc *capacity.Calculation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.routes[routeID]
	if !ok {
		return ErrRouteNotFound
	}

	cp := *calc
	rt.Calculation = &cp
	return nil
}

// Delete deletes a route by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.routes, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
