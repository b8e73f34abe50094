package models

import "encoding/json"

// CapacityPreviewRequest is the request body for computing capacity
// without saving a route.
type CapacityPreviewRequest struct {
	TimeModel  string               `json:"timeModel" validate:"required,time_model"`
	Parameters RouteParametersInput `json:"parameters" validate:"required"`
	Factors    FactorSelection      `json:"factors"`
}

// Coefficients are the two correction coefficients, always with two decimals.
type Coefficients struct {
	CFN json.Number `json:"cfn"`
	M   json.Number `json:"m"`
}

// CapacityCalculation is a calculation record. Figures that could not be
// computed, or that do not apply to the time model, are omitted and
// Computable is false when BCC is missing.
type CapacityCalculation struct {
	TimeModel          string       `json:"timeModel"`
	Coefficients       Coefficients `json:"coefficients"`
	Computable         bool         `json:"computable"`
	AverageSegmentTime *json.Number `json:"averageSegmentTime,omitempty"`
	MaxGroups          *int         `json:"maxGroups,omitempty"`
	BCC                *int         `json:"bcc,omitempty"`
	PCC                *int         `json:"pcc,omitempty"`
	RCC                *int         `json:"rcc,omitempty"`
	CreatedAt          Timestamp    `json:"createdAt"`
}

// CapacityPreview is the response for a capacity preview.
type CapacityPreview struct {
	Calculation     CapacityCalculation `json:"calculation"`
	Recommendations []Factor            `json:"recommendations"`
	CatalogStale    bool                `json:"catalogStale,omitempty"`

	// CatalogUnavailable is set when factors were selected but the
	// catalog could not be read, so neutral coefficients were used.
	CatalogUnavailable bool `json:"catalogUnavailable,omitempty"`
}

// Factor is a catalog entry with its recommendation.
type Factor struct {
	Kind           string      `json:"kind"`
	Number         int         `json:"number"`
	Description    string      `json:"description"`
	Value          json.Number `json:"value"`
	Recommendation string      `json:"recommendation"`
}

// FactorList is the response for catalog listings.
type FactorList struct {
	Items    []Factor  `json:"items"`
	LoadedAt Timestamp `json:"loadedAt"`
	Stale    bool      `json:"stale,omitempty"`
}

// FactorInput is a single factor in an admin catalog update.
type FactorInput struct {
	Kind           string `json:"kind" validate:"required,factor_kind"`
	Number         int    `json:"number" validate:"gte=1"`
	Description    string `json:"description" validate:"required,max=500"`
	Value          string `json:"value" validate:"required,numeric"`
	Recommendation string `json:"recommendation" validate:"max=2000"`
}

// FactorUpsertRequest is the request body for PUT /v1/admin/factors.
type FactorUpsertRequest struct {
	Factors []FactorInput `json:"factors" validate:"required,min=1,max=200,dive"`
}
