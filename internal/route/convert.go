package route

import (
	"encoding/json"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
)

func toAPIRoute(rt *Route, snapshot *catalog.Snapshot) models.Route {
	out := models.Route{
		ID:        rt.ID,
		Name:      rt.Name,
		Kind:      rt.Kind,
		TimeModel: string(rt.TimeModel),
		Parameters: models.RouteParameters{
			AvailableHoursPerDay: models.Number(rt.Params.AvailableHoursPerDay),
			SeasonalDays:         rt.Params.SeasonalDays,
			GroupSize:            rt.Params.GroupSize,
			TripLengthDays:       rt.Params.TripLengthDays,
			SegmentTimes:         make([]*json.Number, len(rt.Params.SegmentTimes)),
			SegmentDistances:     models.Numbers(rt.Params.SegmentDistances),
			GroupSpacings:        models.Numbers(rt.Params.GroupSpacings),
			Speeds:               models.Numbers(rt.Params.Speeds),
		},
		Factors: models.FactorSelection{
			Ecological: nonNil(rt.Selection.Ecological),
			Management: nonNil(rt.Selection.Management),
		},
		Recommendations: []models.Factor{},
		CreatedAt:       models.Timestamp(rt.CreatedAt),
		UpdatedAt:       models.Timestamp(rt.UpdatedAt),
	}

	for i, t := range rt.Params.SegmentTimes {
		out.Parameters.SegmentTimes[i] = models.NullNumber(t)
	}

	if rt.Calculation != nil {
		calc := toAPICalculation(rt.TimeModel, rt.Calculation)
		out.Calculation = &calc
	}

	if snapshot != nil {
		out.Recommendations = catalog.ToAPIFactors(snapshot.Selected(rt.Selection))
	}

	return out
}

func toAPISummary(rt *Route) models.RouteSummary {
	out := models.RouteSummary{
		ID:             rt.ID,
		Name:           rt.Name,
		Kind:           rt.Kind,
		TimeModel:      string(rt.TimeModel),
		TripLengthDays: rt.Params.TripLengthDays,
		CreatedAt:      models.Timestamp(rt.CreatedAt),
	}

	figures := rt.Calculation.Figures()
	out.BCC, out.PCC, out.RCC = figures.BCC, figures.PCC, figures.RCC
	return out
}

func toAPICalculation(model capacity.TimeModel, calc *capacity.Calculation) models.CapacityCalculation {
	figures := calc.Figures()
	return models.CapacityCalculation{
		TimeModel: string(model),
		Coefficients: models.Coefficients{
			CFN: json.Number(calc.Coefficients.CFN.StringFixed(2)),
			M:   json.Number(calc.Coefficients.M.StringFixed(2)),
		},
		Computable:         calc.Result != nil,
		AverageSegmentTime: models.NullNumber(figures.AverageSegmentTime),
		MaxGroups:          figures.MaxGroups,
		BCC:                figures.BCC,
		PCC:                figures.PCC,
		RCC:                figures.RCC,
		CreatedAt:          models.Timestamp(calc.CreatedAt),
	}
}
