package capacity

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Catalog resolves factor ids to their signed coefficient contribution.
type Catalog interface {
	Lookup(kind FactorKind, id int) (decimal.Decimal, bool)
}

// FactorKey identifies a factor within a catalog.
type FactorKey struct {
	Kind FactorKind
	ID   int
}

// StaticCatalog is an immutable map-backed Catalog.
type StaticCatalog map[FactorKey]decimal.Decimal

// Lookup implements Catalog.
func (c StaticCatalog) Lookup(kind FactorKind, id int) (decimal.Decimal, bool) {
	v, ok := c[FactorKey{Kind: kind, ID: id}]
	return v, ok
}

const coefficientPlaces = 2

var (
	coefficientFloor   = decimal.New(10, -2)
	coefficientCeiling = decimal.New(100, -2)
)

func neutralCoefficient() decimal.Decimal {
	return coefficientCeiling
}

// ComputeCoefficient folds the selected factors of one kind into a bounded
// coefficient. The result is 1.00 plus the sum of factor values, clamped to
// [0.10, 1.00] and rounded half-up to two places.
//
// Repeated ids contribute once. If any id is unknown to the catalog the
// whole coefficient falls back to 1.00 and the reference is reported.
func ComputeCoefficient(kind FactorKind, ids []int, catalog Catalog, reporter Reporter) (coefficient decimal.Decimal) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	stage := coefficientStage(kind)

	defer func() {
		if r := recover(); r != nil {
			reporter.Report(Event{
				Kind:    EventArithmeticAnomaly,
				Stage:   stage,
				Message: "coefficient computation failed, using neutral coefficient",
				Err:     fmt.Errorf("recovered: %v", r),
			})
			coefficient = neutralCoefficient()
		}
	}()

	if len(ids) == 0 {
		return neutralCoefficient()
	}
	if catalog == nil {
		reporter.Report(Event{
			Kind:       EventInvalidCatalogReference,
			Stage:      stage,
			Message:    "no factor catalog available, using neutral coefficient",
			FactorKind: kind,
		})
		return neutralCoefficient()
	}

	sum := decimal.NewFromInt(1)
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		value, ok := catalog.Lookup(kind, id)
		if !ok {
			reporter.Report(Event{
				Kind:       EventInvalidCatalogReference,
				Stage:      stage,
				Message:    "unknown factor id, using neutral coefficient",
				FactorKind: kind,
				FactorID:   id,
			})
			return neutralCoefficient()
		}
		sum = sum.Add(value)
	}

	return clampCoefficient(sum)
}

// ComputeCoefficients computes CFN from the ecological selection and M
// from the management selection.
func ComputeCoefficients(selection FactorSelection, catalog Catalog, reporter Reporter) Coefficients {
	return Coefficients{
		CFN: ComputeCoefficient(Ecological, selection.Ecological, catalog, reporter),
		M:   ComputeCoefficient(Management, selection.Management, catalog, reporter),
	}
}

func clampCoefficient(v decimal.Decimal) decimal.Decimal {
	v = decimal.Max(coefficientFloor, decimal.Min(coefficientCeiling, v))
	return v.Round(coefficientPlaces)
}

func coefficientStage(kind FactorKind) string {
	if kind == Management {
		return StageM
	}
	return StageCFN
}
