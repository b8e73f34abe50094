// Package catalog manages the reference set of ecological and management
// factors, each carrying a signed coefficient contribution and a
// recommendation shown to route authors.
package catalog

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

// ErrCatalogUnavailable is returned when no snapshot can be loaded.
var ErrCatalogUnavailable = errors.New("factor catalog unavailable")

// Factor is a single catalog entry. (Kind, Number) is unique.
type Factor struct {
	Kind           capacity.FactorKind
	Number         int
	Description    string
	Value          decimal.Decimal
	Recommendation string
	UpdatedAt      time.Time
}

// Key returns the catalog key of f.
func (f Factor) Key() capacity.FactorKey {
	return capacity.FactorKey{Kind: f.Kind, ID: f.Number}
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// sortFactors orders factors ecological first, then by number.
func sortFactors(factors []Factor) {
	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].Kind != factors[j].Kind {
			return factors[i].Kind == capacity.Ecological
		}
		return factors[i].Number < factors[j].Number
	})
}

// DefaultFactors returns the factor set seeded into new deployments.
func DefaultFactors() []Factor {
	eco := func(n int, value, description, recommendation string) Factor {
		return Factor{Kind: capacity.Ecological, Number: n, Value: decimal.RequireFromString(value), Description: description, Recommendation: recommendation}
	}
	mgmt := func(n int, value, description, recommendation string) Factor {
		return Factor{Kind: capacity.Management, Number: n, Value: decimal.RequireFromString(value), Description: description, Recommendation: recommendation}
	}

	return []Factor{
		eco(1, "-0.10", "Soil erosion on the trail tread",
			"Harden eroded sections with stone steps or boardwalk and add drainage crossings."),
		eco(2, "-0.08", "Vegetation trampling beside the trail",
			"Mark the trail edges and close informal shortcuts with natural barriers."),
		eco(3, "-0.15", "Wildlife disturbance during the breeding season",
			"Restrict group visits during breeding months and keep groups on the main trail."),
		eco(4, "-0.12", "Steep slopes prone to landslides",
			"Inspect slopes after heavy rain and reroute the trail around unstable ground."),
		eco(5, "-0.10", "Waterlogged or flood-prone sections",
			"Install raised walkways and close the section during high water."),
		eco(6, "-0.07", "Fire hazard in the dry season",
			"Ban open fires, post fire danger notices and equip rest areas with extinguishers."),
		eco(7, "-0.12", "Rare or protected plant communities",
			"Fence protected plots and brief groups on the site's protection status."),
		eco(8, "-0.20", "Snow and avalanche exposure",
			"Publish avalanche bulletins at the trailhead and close exposed sections in winter."),
		mgmt(1, "-0.15", "Insufficient ranger staffing",
			"Increase patrol frequency on peak days or recruit seasonal volunteer rangers."),
		mgmt(2, "-0.05", "Missing waymarking and signage",
			"Install waymarks at every junction and an information board at the trailhead."),
		mgmt(3, "-0.05", "No waste collection points",
			"Place bins at the trailhead and promote a carry-in carry-out policy."),
		mgmt(4, "-0.20", "No rescue service coverage",
			"Agree a response plan with the regional rescue service and register groups before departure."),
		mgmt(5, "-0.10", "Limited parking and access infrastructure",
			"Introduce advance booking for parking or a shuttle from the nearest settlement."),
		mgmt(6, "-0.08", "No visitor registration system",
			"Introduce group registration at the entry point to track visitor numbers."),
	}
}

// ToAPI converts f to its API representation.
func (f Factor) ToAPI() models.Factor {
	return models.Factor{
		Kind:           string(f.Kind),
		Number:         f.Number,
		Description:    f.Description,
		Value:          models.Number(f.Value),
		Recommendation: f.Recommendation,
	}
}

// ToAPIFactors converts factors to their API representation.
func ToAPIFactors(factors []Factor) []models.Factor {
	out := make([]models.Factor, 0, len(factors))
	for _, f := range factors {
		out = append(out, f.ToAPI())
	}
	return out
}
