package validation_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/validation"
)

type sampleRequest struct {
	Name      string                `json:"name" validate:"required,max=10"`
	Kind      string                `json:"kind" validate:"required,route_kind"`
	TimeModel string                `json:"timeModel" validate:"required,time_model"`
	Hours     decimal.Decimal       `json:"hours" validate:"gte=0.1,lte=24"`
	Times     []decimal.NullDecimal `json:"times" validate:"required,min=1,dive,gte=0"`
	Factors   []int                 `json:"factors" validate:"dive,gte=1"`
	Email     string                `json:"email" validate:"omitempty,email"`
}

func validSample() sampleRequest {
	return sampleRequest{
		Name:      "Ridge",
		Kind:      "single_day",
		TimeModel: "fixed_time",
		Hours:     decimal.RequireFromString("8"),
		Times:     []decimal.NullDecimal{decimal.NewNullDecimal(decimal.NewFromInt(2)), {}},
		Factors:   []int{1, 2},
	}
}

func fieldsOf(errs []models.FieldError) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field] = e.Code
	}
	return out
}

func TestGetValidator_Singleton(t *testing.T) {
	assert.Same(t, validation.GetValidator(), validation.GetValidator())
}

func TestValidateStruct_Valid(t *testing.T) {
	req := validSample()
	assert.Nil(t, validation.ValidateStruct(&req))
}

func TestValidateStruct_Failures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *sampleRequest)
		wantField string
		wantCode  string
	}{
		{name: "missing name", mutate: func(r *sampleRequest) { r.Name = "" }, wantField: "name", wantCode: "required"},
		{name: "long name", mutate: func(r *sampleRequest) { r.Name = "abcdefghijk" }, wantField: "name", wantCode: "max"},
		{name: "unknown kind", mutate: func(r *sampleRequest) { r.Kind = "weekly" }, wantField: "kind", wantCode: "route_kind"},
		{name: "unknown time model", mutate: func(r *sampleRequest) { r.TimeModel = "sometimes" }, wantField: "timeModel", wantCode: "time_model"},
		{name: "hours too low", mutate: func(r *sampleRequest) { r.Hours = decimal.RequireFromString("0.05") }, wantField: "hours", wantCode: "gte"},
		{name: "hours too high", mutate: func(r *sampleRequest) { r.Hours = decimal.RequireFromString("24.5") }, wantField: "hours", wantCode: "lte"},
		{name: "empty times", mutate: func(r *sampleRequest) { r.Times = []decimal.NullDecimal{} }, wantField: "times", wantCode: "min"},
		{
			name: "negative time",
			mutate: func(r *sampleRequest) {
				r.Times = []decimal.NullDecimal{decimal.NewNullDecimal(decimal.NewFromInt(-1))}
			},
			wantField: "times[0]", wantCode: "gte",
		},
		{name: "bad factor id", mutate: func(r *sampleRequest) { r.Factors = []int{1, 0} }, wantField: "factors[1]", wantCode: "gte"},
		{name: "bad email", mutate: func(r *sampleRequest) { r.Email = "nope" }, wantField: "email", wantCode: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSample()
			tt.mutate(&req)

			errs := validation.ValidateStruct(&req)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.wantCode, fieldsOf(errs)[tt.wantField], "errors: %+v", errs)
		})
	}
}

func TestValidateStruct_Messages(t *testing.T) {
	req := validSample()
	req.Name = ""
	req.Times = nil

	errs := validation.ValidateStruct(&req)
	require.Len(t, errs, 2)

	messages := map[string]string{}
	for _, e := range errs {
		messages[e.Field] = e.Message
	}
	assert.Equal(t, "is required", messages["name"])
	assert.Equal(t, "is required", messages["times"])
}
