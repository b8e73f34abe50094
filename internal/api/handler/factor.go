package handler

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/api/response"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/validation"
)

// FactorHandler handles factor catalog administration.
type FactorHandler struct {
	catalogService *catalog.Service
	logger         zerolog.Logger
}

// NewFactorHandler creates a new FactorHandler.
func NewFactorHandler(catalogService *catalog.Service, logger zerolog.Logger) *FactorHandler {
	return &FactorHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// ListFactors handles GET /v1/admin/factors - list the factor catalog.
func (h *FactorHandler) ListFactors(w http.ResponseWriter, r *http.Request) {
	h.writeCatalog(w, r)
}

// UpsertFactors handles PUT /v1/admin/factors - create or replace factors.
// Stored routes are recalculated asynchronously by the worker.
func (h *FactorHandler) UpsertFactors(w http.ResponseWriter, r *http.Request) {
	var req models.FactorUpsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrors := validation.ValidateStruct(&req); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation error", fieldErrors)
		return
	}

	factors := make([]catalog.Factor, 0, len(req.Factors))
	for i, in := range req.Factors {
		value, err := decimal.NewFromString(in.Value)
		if err != nil {
			response.BadRequest(w, r, "validation error", []models.FieldError{
				{Field: fmt.Sprintf("factors[%d].value", i), Message: "must be a decimal number", Code: "numeric"},
			})
			return
		}
		factors = append(factors, catalog.Factor{
			Kind:           capacity.FactorKind(in.Kind),
			Number:         in.Number,
			Description:    in.Description,
			Value:          value,
			Recommendation: in.Recommendation,
		})
	}

	middleware.Annotate(r.Context(), middleware.AttrFactorCount.Int(len(factors)))
	if err := h.catalogService.Upsert(r.Context(), factors); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.writeCatalog(w, r)
}

func (h *FactorHandler) writeCatalog(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.catalogService.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.FactorList{
		Items:    catalog.ToAPIFactors(snapshot.Factors()),
		LoadedAt: models.Timestamp(snapshot.LoadedAt),
		Stale:    snapshot.Stale,
	})
}
