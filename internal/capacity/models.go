// Package capacity computes recreational carrying capacity figures for outdoor routes.
//
// The package is pure: it operates on plain value types, never touches
// storage, and reports degraded inputs to a Reporter instead of returning
// errors. A route can therefore always be saved, even when some capacity
// figures are not computable.
package capacity

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownTimeModel is returned when a time model string is not recognised.
var ErrUnknownTimeModel = errors.New("unknown route time model")

// TimeModel determines which capacity algorithm applies to a route.
type TimeModel string

const (
	// FixedTime routes are bounded by a daily available-hours window.
	FixedTime TimeModel = "fixed_time"
	// UnlimitedTime routes are bounded by seasonal days divided by trip length.
	UnlimitedTime TimeModel = "unlimited_time"
)

// ParseTimeModel converts a wire value into a TimeModel.
func ParseTimeModel(s string) (TimeModel, error) {
	m := TimeModel(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeModel, s)
	}
	return m, nil
}

// Valid reports whether m is one of the known time models.
func (m TimeModel) Valid() bool {
	return m == FixedTime || m == UnlimitedTime
}

// FactorKind identifies which catalog a factor id belongs to.
type FactorKind string

const (
	// Ecological factors feed the CFN coefficient.
	Ecological FactorKind = "ecological"
	// Management factors feed the M coefficient.
	Management FactorKind = "management"
)

// Valid reports whether k is a known factor kind.
func (k FactorKind) Valid() bool {
	return k == Ecological || k == Management
}

// RouteParameters is the immutable snapshot of route inputs used by the
// capacity algorithms.
type RouteParameters struct {
	// AvailableHoursPerDay is the daily window in hours, in (0, 24].
	AvailableHoursPerDay decimal.Decimal

	// SeasonalDays is the number of days in the tourist season.
	SeasonalDays int

	// GroupSize is the average number of people per group.
	GroupSize int

	// TripLengthDays is the number of days needed to complete the route.
	// Only unlimited-time routes use it.
	TripLengthDays int

	// SegmentTimes holds the traversal time per segment. Null entries are skipped.
	SegmentTimes []decimal.NullDecimal

	// Display-only arrays, never consumed by the formulas.
	SegmentDistances []decimal.Decimal
	GroupSpacings    []decimal.Decimal
	Speeds           []decimal.Decimal
}

// FactorSelection holds the factor ids selected for a route.
type FactorSelection struct {
	Ecological []int
	Management []int
}

// IsEmpty reports whether no factors are selected.
func (s FactorSelection) IsEmpty() bool {
	return len(s.Ecological) == 0 && len(s.Management) == 0
}

// Coefficients are the two bounded correction coefficients.
// Both are always in [0.10, 1.00] with two decimal places.
type Coefficients struct {
	CFN decimal.Decimal
	M   decimal.Decimal
}

// NeutralCoefficients returns coefficients that apply no correction.
func NeutralCoefficients() Coefficients {
	return Coefficients{CFN: neutralCoefficient(), M: neutralCoefficient()}
}

// Result is the output of a capacity algorithm. It is either a
// FixedTimeResult or an UnlimitedTimeResult; a nil Result means no
// figures could be computed.
type Result interface {
	// TimeModel returns the time model that produced the result.
	TimeModel() TimeModel
	// BaseCapacity returns the BCC figure.
	BaseCapacity() int

	sealed()
}

// FixedTimeResult carries the full BCC/PCC/RCC chain of a fixed-time route.
type FixedTimeResult struct {
	AverageSegmentTime decimal.Decimal
	MaxGroups          int
	BCC                int
	PCC                int
	RCC                int
}

// TimeModel implements Result.
func (FixedTimeResult) TimeModel() TimeModel { return FixedTime }

// BaseCapacity implements Result.
func (r FixedTimeResult) BaseCapacity() int { return r.BCC }

func (FixedTimeResult) sealed() {}

// UnlimitedTimeResult carries BCC only. MaxGroups, PCC and RCC are not
// defined for routes without a daily throughput window.
type UnlimitedTimeResult struct {
	BCC int
}

// TimeModel implements Result.
func (UnlimitedTimeResult) TimeModel() TimeModel { return UnlimitedTime }

// BaseCapacity implements Result.
func (r UnlimitedTimeResult) BaseCapacity() int { return r.BCC }

func (UnlimitedTimeResult) sealed() {}

// Calculation is the immutable record produced for a route: coefficients,
// whichever capacity figures were computable, and the creation time.
type Calculation struct {
	Coefficients Coefficients
	Result       Result
	CreatedAt    time.Time
}

// Figures is the nullable column view of a Result used by persistence
// and API adapters. Absent figures are nil, never zero.
type Figures struct {
	AverageSegmentTime decimal.NullDecimal
	MaxGroups          *int
	BCC                *int
	PCC                *int
	RCC                *int
}

// Figures flattens the calculation result into nullable fields.
func (c *Calculation) Figures() Figures {
	if c == nil {
		return Figures{}
	}
	switch r := c.Result.(type) {
	case FixedTimeResult:
		return Figures{
			AverageSegmentTime: decimal.NewNullDecimal(r.AverageSegmentTime),
			MaxGroups:          intPtr(r.MaxGroups),
			BCC:                intPtr(r.BCC),
			PCC:                intPtr(r.PCC),
			RCC:                intPtr(r.RCC),
		}
	case UnlimitedTimeResult:
		return Figures{BCC: intPtr(r.BCC)}
	default:
		return Figures{}
	}
}

// ResultFromFigures rebuilds a Result from persisted nullable fields.
// It returns nil when the fields do not form a complete result for the
// given time model.
func ResultFromFigures(model TimeModel, f Figures) Result {
	switch model {
	case FixedTime:
		if f.MaxGroups == nil || f.BCC == nil || f.PCC == nil || f.RCC == nil {
			return nil
		}
		return FixedTimeResult{
			AverageSegmentTime: f.AverageSegmentTime.Decimal,
			MaxGroups:          *f.MaxGroups,
			BCC:                *f.BCC,
			PCC:                *f.PCC,
			RCC:                *f.RCC,
		}
	case UnlimitedTime:
		if f.BCC == nil {
			return nil
		}
		return UnlimitedTimeResult{BCC: *f.BCC}
	default:
		return nil
	}
}

func intPtr(v int) *int {
	return &v
}
