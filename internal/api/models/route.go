package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RouteInput is the request body for creating or replacing a route.
type RouteInput struct {
	Name       string               `json:"name" validate:"required,max=255"`
	Kind       string               `json:"kind" validate:"required,route_kind"`
	TimeModel  string               `json:"timeModel" validate:"required,time_model"`
	Parameters RouteParametersInput `json:"parameters" validate:"required"`
	Factors    FactorSelection      `json:"factors"`
}

// RouteParametersInput carries the numeric route inputs. Segment times may
// contain nulls for segments that were not measured.
type RouteParametersInput struct {
	AvailableHoursPerDay decimal.Decimal       `json:"availableHoursPerDay" validate:"gt=0,lte=24"`
	SeasonalDays         int                   `json:"seasonalDays" validate:"gte=1"`
	GroupSize            int                   `json:"groupSize" validate:"gte=1"`
	TripLengthDays       int                   `json:"tripLengthDays" validate:"gte=1"`
	SegmentTimes         []decimal.NullDecimal `json:"segmentTimes" validate:"required,min=1,max=500,dive,gte=0"`
	SegmentDistances     []decimal.Decimal     `json:"segmentDistances,omitempty" validate:"omitempty,max=500,dive,gte=0"`
	GroupSpacings        []decimal.Decimal     `json:"groupSpacings,omitempty" validate:"omitempty,max=500,dive,gte=0"`
	Speeds               []decimal.Decimal     `json:"speeds,omitempty" validate:"omitempty,max=500,dive,gte=0"`
}

// FactorSelection lists the catalog factor numbers selected for a route.
type FactorSelection struct {
	Ecological []int `json:"ecological" validate:"omitempty,max=100,dive,gte=1"`
	Management []int `json:"management" validate:"omitempty,max=100,dive,gte=1"`
}

// Route is the detailed view of a saved route.
type Route struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Kind            string               `json:"kind"`
	TimeModel       string               `json:"timeModel"`
	Parameters      RouteParameters      `json:"parameters"`
	Factors         FactorSelection      `json:"factors"`
	Calculation     *CapacityCalculation `json:"calculation,omitempty"`
	Recommendations []Factor             `json:"recommendations"`
	CreatedAt       Timestamp            `json:"createdAt"`
	UpdatedAt       Timestamp            `json:"updatedAt"`
}

// RouteParameters echoes the stored route inputs.
type RouteParameters struct {
	AvailableHoursPerDay json.Number    `json:"availableHoursPerDay"`
	SeasonalDays         int            `json:"seasonalDays"`
	GroupSize            int            `json:"groupSize"`
	TripLengthDays       int            `json:"tripLengthDays"`
	SegmentTimes         []*json.Number `json:"segmentTimes"`
	SegmentDistances     []json.Number  `json:"segmentDistances"`
	GroupSpacings        []json.Number  `json:"groupSpacings"`
	Speeds               []json.Number  `json:"speeds"`
}

// RouteSummary is the list view of a saved route.
type RouteSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Kind           string    `json:"kind"`
	TimeModel      string    `json:"timeModel"`
	TripLengthDays int       `json:"tripLengthDays"`
	BCC            *int      `json:"bcc,omitempty"`
	PCC            *int      `json:"pcc,omitempty"`
	RCC            *int      `json:"rcc,omitempty"`
	CreatedAt      Timestamp `json:"createdAt"`
}

// PagedRoutes represents a paginated list of routes.
type PagedRoutes struct {
	Items []RouteSummary    `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// Number renders a decimal as a JSON number literal.
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// NullNumber renders a nullable decimal, returning nil for null.
func NullNumber(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := Number(d.Decimal)
	return &n
}

// Numbers renders a decimal slice. A nil slice renders as an empty array.
func Numbers(ds []decimal.Decimal) []json.Number {
	out := make([]json.Number, len(ds))
	for i, d := range ds {
		out[i] = Number(d)
	}
	return out
}
