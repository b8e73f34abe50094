// Package route manages saved routes and their capacity calculations.
package route

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

// Repository errors.
var (
	ErrRouteNotFound = errors.New("route not found")
)

// Route represents a saved route owned by a user.
type Route struct {
	ID        string
	UserID    string
	Name      string
	Kind      string
	TimeModel capacity.TimeModel
	Params    capacity.RouteParameters
	Selection capacity.FactorSelection

	// Calculation is the most recent calculation, nil until one is saved.
	Calculation *capacity.Calculation

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// clone returns a deep copy of r so callers cannot mutate stored slices.
func (r *Route) clone() *Route {
	cp := *r
	cp.Params.SegmentTimes = append([]decimal.NullDecimal(nil), r.Params.SegmentTimes...)
	cp.Params.SegmentDistances = append([]decimal.Decimal(nil), r.Params.SegmentDistances...)
	cp.Params.GroupSpacings = append([]decimal.Decimal(nil), r.Params.GroupSpacings...)
	cp.Params.Speeds = append([]decimal.Decimal(nil), r.Params.Speeds...)
	cp.Selection.Ecological = append([]int(nil), r.Selection.Ecological...)
	cp.Selection.Management = append([]int(nil), r.Selection.Management...)
	if r.Calculation != nil {
		calc := *r.Calculation
		cp.Calculation = &calc
	}
	return &cp
}
