package route

import (
	"context"

	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

// ListOptions contains options for listing routes.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains the results of listing routes.
type ListResult struct {
	Items      []*Route
	NextCursor string
}

// Repository defines the interface for route data persistence.
type Repository interface {
	// Get retrieves a route by ID together with its latest calculation.
	Get(ctx context.Context, id string) (*Route, error)

	// GetByUserAndID retrieves a route by user ID and route ID.
	// Returns ErrRouteNotFound if the route doesn't exist or doesn't belong to the user.
	GetByUserAndID(ctx context.Context, userID, routeID string) (*Route, error)

	// List retrieves a user's routes, newest first. The cursor is the ID of
	// the last route of the previous page.
	List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error)

	// ListIDs returns route IDs in ascending order, starting after afterID.
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)

	// Create stores a new route and, when set, its calculation.
	Create(ctx context.Context, route *Route) error

	// Update replaces the route inputs and, when set, appends its calculation.
	Update(ctx context.Context, route *Route) error

	// SaveCalculation appends a calculation to an existing route.
	SaveCalculation(ctx context.Context, routeID string, calc *capacity.Calculation) error

	// Delete deletes a route and its calculations.
	Delete(ctx context.Context, id string) error
}
