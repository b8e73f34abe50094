package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/api/response"
	"github.com/recreationcalc/recreationcalc/internal/capacity"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/route"
)

// RouteHandler handles route and capacity endpoints.
type RouteHandler struct {
	routeService   *route.Service
	catalogService *catalog.Service
	logger         zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(routeService *route.Service, catalogService *catalog.Service, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		routeService:   routeService,
		catalogService: catalogService,
		logger:         logger,
	}
}

// ListRoutes handles GET /v1/routes - list the user's routes.
func (h *RouteHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "invalid query parameter", []models.FieldError{
				{Field: "limit", Message: "must be a positive integer", Code: "gte"},
			})
			return
		}
		limit = n
	}

	routes, err := h.routeService.List(r.Context(), GetUserID(r.Context()), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, routes)
}

// CreateRoute handles POST /v1/routes - create a route and calculate its capacity.
func (h *RouteHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var input models.RouteInput
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	rt, err := h.routeService.Create(r.Context(), GetUserID(r.Context()), &input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	annotateRoute(r, rt)
	response.Created(w, r, "/v1/routes/"+rt.ID, rt)
}

// GetRoute handles GET /v1/routes/{routeId} - get a route with its latest calculation.
func (h *RouteHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := h.routeService.Get(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "routeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	annotateRoute(r, rt)
	response.JSON(w, r, http.StatusOK, rt)
}

// UpdateRoute handles PUT /v1/routes/{routeId} - replace route inputs and recalculate.
func (h *RouteHandler) UpdateRoute(w http.ResponseWriter, r *http.Request) {
	var input models.RouteInput
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	rt, err := h.routeService.Update(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "routeId"), &input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	annotateRoute(r, rt)
	response.JSON(w, r, http.StatusOK, rt)
}

// DeleteRoute handles DELETE /v1/routes/{routeId} - delete a route.
func (h *RouteHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")
	middleware.Annotate(r.Context(), middleware.AttrRouteID.String(routeID))
	if err := h.routeService.Delete(r.Context(), GetUserID(r.Context()), routeID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.NoContent(w, r)
}

// Recommendations handles GET /v1/routes/recommendations - list catalog
// factors with their recommendations. The optional ecological and
// management query parameters (comma-separated numbers) narrow the list
// to the selected factors.
func (h *RouteHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	ecological, ok := parseFactorNumbers(r.URL.Query().Get("ecological"))
	if !ok {
		response.BadRequest(w, r, "invalid query parameter", []models.FieldError{
			{Field: "ecological", Message: "must be a comma-separated list of factor numbers", Code: "invalid"},
		})
		return
	}
	management, ok := parseFactorNumbers(r.URL.Query().Get("management"))
	if !ok {
		response.BadRequest(w, r, "invalid query parameter", []models.FieldError{
			{Field: "management", Message: "must be a comma-separated list of factor numbers", Code: "invalid"},
		})
		return
	}

	snapshot, err := h.catalogService.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	factors := snapshot.Factors()
	selection := capacity.FactorSelection{Ecological: ecological, Management: management}
	if !selection.IsEmpty() {
		factors = snapshot.Selected(selection)
	}

	middleware.Annotate(r.Context(),
		middleware.AttrCatalogStale.Bool(snapshot.Stale),
		middleware.AttrFactorCount.Int(len(factors)),
	)
	response.JSON(w, r, http.StatusOK, models.FactorList{
		Items:    catalog.ToAPIFactors(factors),
		LoadedAt: models.Timestamp(snapshot.LoadedAt),
		Stale:    snapshot.Stale,
	})
}

// PreviewCapacity handles POST /v1/capacity:preview - calculate capacity
// without storing a route.
func (h *RouteHandler) PreviewCapacity(w http.ResponseWriter, r *http.Request) {
	var input models.CapacityPreviewRequest
	if err := decodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	preview, err := h.routeService.Preview(r.Context(), &input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	middleware.Annotate(r.Context(),
		middleware.AttrTimeModel.String(preview.Calculation.TimeModel),
		middleware.AttrComputable.Bool(preview.Calculation.Computable),
		middleware.AttrCatalogStale.Bool(preview.CatalogStale),
	)
	response.JSON(w, r, http.StatusOK, preview)
}

// annotateRoute tags the request's span and log line with the route served.
func annotateRoute(r *http.Request, rt *models.Route) {
	attrs := []attribute.KeyValue{
		middleware.AttrRouteID.String(rt.ID),
		middleware.AttrTimeModel.String(rt.TimeModel),
	}
	if rt.Calculation != nil {
		attrs = append(attrs, middleware.AttrComputable.Bool(rt.Calculation.Computable))
	}
	middleware.Annotate(r.Context(), attrs...)
}

func parseFactorNumbers(raw string) ([]int, bool) {
	if raw == "" {
		return nil, true
	}

	parts := strings.Split(raw, ",")
	numbers := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, false
		}
		numbers = append(numbers, n)
	}
	return numbers, true
}
