// Package validation wraps go-playground/validator with the project's
// custom tags and translates failures into API field errors.
//
// Struct fields are reported by their JSON name (falling back to the
// koanf name, then the Go name), with nested paths joined by dots:
//
//	type RouteCreateRequest struct {
//	    Name         string                `json:"name" validate:"required,max=255"`
//	    TimeModel    string                `json:"timeModel" validate:"required,time_model"`
//	    SegmentTimes []decimal.NullDecimal `json:"segmentTimes" validate:"required,min=1,dive,gte=0"`
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Route kinds accepted by the route_kind tag.
const (
	RouteKindSingleDay = "single_day"
	RouteKindMultiDay  = "multi_day"
)

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(fieldName)

		// Decimals validate as float64 so gte/lte/gt work on them.
		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})

		_ = v.RegisterValidation("time_model", func(fl validator.FieldLevel) bool {
			return capacity.TimeModel(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("route_kind", func(fl validator.FieldLevel) bool {
			kind := fl.Field().String()
			return kind == RouteKindSingleDay || kind == RouteKindMultiDay
		})
		_ = v.RegisterValidation("factor_kind", func(fl validator.FieldLevel) bool {
			return capacity.FactorKind(fl.Field().String()).Valid()
		})

		validate = v
	})

	return validate
}

// ValidateStruct validates s and returns one FieldError per failed rule,
// or nil when s is valid.
func ValidateStruct(s interface{}) []models.FieldError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []models.FieldError{{Field: "body", Message: err.Error(), Code: "invalid"}}
	}

	fieldErrors := make([]models.FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: translateError(fe),
			Code:    fe.Tag(),
		})
	}
	return fieldErrors
}

func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "koanf"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func decimalValue(field reflect.Value) interface{} {
	switch v := field.Interface().(type) {
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	case decimal.NullDecimal:
		if !v.Valid {
			return float64(0)
		}
		f, _ := v.Decimal.Float64()
		return f
	}
	return nil
}

var errorMessageTemplates = map[string]string{
	"required":    "is required",
	"email":       "must be a valid email address",
	"time_model":  "must be one of: fixed_time unlimited_time",
	"route_kind":  "must be one of: single_day multi_day",
	"factor_kind": "must be one of: ecological management",
	"uuid":        "must be a valid identifier",
}

var errorMessageWithParam = map[string]string{
	"oneof":   "must be one of: %s",
	"gte":     "must be greater than or equal to %s",
	"lte":     "must be less than or equal to %s",
	"gt":      "must be greater than %s",
	"lt":      "must be less than %s",
	"eqfield": "must match %s",
	"nefield": "must differ from %s",
}

func translateError(fe validator.FieldError) string {
	tag := fe.Tag()
	param := fe.Param()

	if msg, ok := errorMessageTemplates[tag]; ok {
		return msg
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, param)
	}

	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = " items"
	}

	switch tag {
	case "min":
		return fmt.Sprintf("must be at least %s%s", param, unit)
	case "max":
		return fmt.Sprintf("must be at most %s%s", param, unit)
	case "len":
		return fmt.Sprintf("must be exactly %s%s", param, unit)
	default:
		return fmt.Sprintf("failed %s validation", tag)
	}
}
