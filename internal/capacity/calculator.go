package capacity

import (
	"time"
)

// Assemble composes coefficients and figures into a Calculation.
func Assemble(coefficients Coefficients, result Result, createdAt time.Time) *Calculation {
	return &Calculation{
		Coefficients: coefficients,
		Result:       result,
		CreatedAt:    createdAt.UTC(),
	}
}

// CalculatorConfig holds configuration for the calculator.
type CalculatorConfig struct {
	Reporter Reporter
	Clock    func() time.Time
}

// Calculator runs the full pipeline: coefficients, classification,
// algorithm and assembly. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	reporter Reporter
	clock    func() time.Time
}

// NewCalculator creates a calculator.
func NewCalculator(cfg CalculatorConfig) *Calculator {
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Calculator{reporter: cfg.Reporter, clock: cfg.Clock}
}

// Calculate produces a new Calculation for a route snapshot.
func (c *Calculator) Calculate(params RouteParameters, model TimeModel, selection FactorSelection, catalog Catalog) *Calculation {
	coefficients := ComputeCoefficients(selection, catalog, c.reporter)
	result := ComputeCapacity(params, model, coefficients, c.reporter)
	return Assemble(coefficients, result, c.clock())
}
