package capacity

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Algorithm names a capacity algorithm.
type Algorithm string

const (
	// AlgorithmFixedTime derives BCC, PCC and RCC from a daily time window.
	AlgorithmFixedTime Algorithm = "fixed_time"
	// AlgorithmUnlimitedTime derives BCC from whole trips per season.
	AlgorithmUnlimitedTime Algorithm = "unlimited_time"
	// AlgorithmNone is returned for time models with no algorithm.
	AlgorithmNone Algorithm = ""
)

// Classify selects the algorithm for a time model. Unknown models map to
// AlgorithmNone; request validation rejects them before they get here.
func Classify(model TimeModel) Algorithm {
	switch model {
	case FixedTime:
		return AlgorithmFixedTime
	case UnlimitedTime:
		return AlgorithmUnlimitedTime
	default:
		return AlgorithmNone
	}
}

// ComputeCapacity runs the algorithm matching model. It returns nil when
// no figures are computable.
func ComputeCapacity(params RouteParameters, model TimeModel, coefficients Coefficients, reporter Reporter) Result {
	switch Classify(model) {
	case AlgorithmFixedTime:
		if r := ComputeFixedTime(params, coefficients, reporter); r != nil {
			return *r
		}
	case AlgorithmUnlimitedTime:
		if r := ComputeUnlimitedTime(params, reporter); r != nil {
			return *r
		}
	}
	return nil
}

// maxFigure is the largest figure that fits the persisted integer columns.
const maxFigure = math.MaxInt32

var maxFigureDecimal = decimal.NewFromInt(maxFigure)

const averagePlaces = 2

// AverageSegmentTime returns the mean of the non-null segment times,
// rounded half-up to two places. It returns zero when no value is present.
func AverageSegmentTime(times []decimal.NullDecimal) decimal.Decimal {
	sum := decimal.Zero
	count := int64(0)
	for _, t := range times {
		if !t.Valid {
			continue
		}
		sum = sum.Add(t.Decimal)
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.DivRound(decimal.NewFromInt(count), averagePlaces)
}

// ComputeFixedTime derives MaxGroups, BCC, PCC and RCC for a route with a
// daily time window. It returns nil and reports an event when the average
// segment time is not positive or a figure leaves the integer range.
func ComputeFixedTime(params RouteParameters, coefficients Coefficients, reporter Reporter) (result *FixedTimeResult) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	defer recoverFigures(reporter, StageFixedTime, func() { result = nil })

	avg := AverageSegmentTime(params.SegmentTimes)
	if !avg.IsPositive() {
		reporter.Report(Event{
			Kind:    EventDegenerateInput,
			Stage:   StageFixedTime,
			Message: "average segment time is not positive, capacity figures omitted",
		})
		return nil
	}
	if !params.AvailableHoursPerDay.IsPositive() || params.GroupSize <= 0 {
		reporter.Report(Event{
			Kind:    EventDegenerateInput,
			Stage:   StageFixedTime,
			Message: "available hours and group size must be positive, capacity figures omitted",
		})
		return nil
	}

	maxGroups, _ := params.AvailableHoursPerDay.QuoRem(avg, 0)
	bcc := maxGroups.Mul(decimal.NewFromInt(int64(params.GroupSize)))
	pcc := bcc.Mul(coefficients.CFN).Round(0)
	rcc := pcc.Mul(coefficients.M).Floor()

	// Coefficients never exceed 1.00, so PCC and RCC are bounded by BCC and
	// can only overflow together with it. A result without BCC has nothing
	// left to show but MaxGroups, which FixedTimeResult does not carry on
	// its own, so any overflow drops the whole result.
	for _, figure := range []decimal.Decimal{maxGroups, bcc, pcc, rcc} {
		if figure.GreaterThan(maxFigureDecimal) {
			reporter.Report(Event{
				Kind:    EventArithmeticAnomaly,
				Stage:   StageFixedTime,
				Message: "capacity figure exceeds integer range, capacity figures omitted",
			})
			return nil
		}
	}

	return &FixedTimeResult{
		AverageSegmentTime: avg,
		MaxGroups:          int(maxGroups.IntPart()),
		BCC:                int(bcc.IntPart()),
		PCC:                int(pcc.IntPart()),
		RCC:                int(rcc.IntPart()),
	}
}

// ComputeUnlimitedTime derives BCC for a route without a daily time
// window: whole trips per season times group size.
func ComputeUnlimitedTime(params RouteParameters, reporter Reporter) (result *UnlimitedTimeResult) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	defer recoverFigures(reporter, StageUnlimitedTime, func() { result = nil })

	if params.TripLengthDays <= 0 {
		reporter.Report(Event{
			Kind:    EventDegenerateInput,
			Stage:   StageUnlimitedTime,
			Message: "trip length is not positive, capacity figures omitted",
		})
		return nil
	}
	if params.SeasonalDays < 0 || params.GroupSize < 0 {
		reporter.Report(Event{
			Kind:    EventDegenerateInput,
			Stage:   StageUnlimitedTime,
			Message: "seasonal days and group size must not be negative, capacity figures omitted",
		})
		return nil
	}

	trips := int64(params.SeasonalDays / params.TripLengthDays)
	if params.GroupSize > 0 && trips > maxFigure/int64(params.GroupSize) {
		reporter.Report(Event{
			Kind:    EventArithmeticAnomaly,
			Stage:   StageUnlimitedTime,
			Message: "capacity figure exceeds integer range, capacity figures omitted",
		})
		return nil
	}

	return &UnlimitedTimeResult{BCC: int(trips * int64(params.GroupSize))}
}

func recoverFigures(reporter Reporter, stage string, reset func()) {
	if r := recover(); r != nil {
		reporter.Report(Event{
			Kind:    EventArithmeticAnomaly,
			Stage:   stage,
			Message: "capacity computation failed, capacity figures omitted",
			Err:     fmt.Errorf("recovered: %v", r),
		})
		reset()
	}
}
