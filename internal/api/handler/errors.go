package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
	"github.com/recreationcalc/recreationcalc/internal/api/response"
	"github.com/recreationcalc/recreationcalc/internal/auth"
	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/route"
)

// writeError maps service errors to problem responses. Unexpected errors
// are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var (
		routeValidation   *route.ValidationError
		authValidation    *auth.ValidationError
		catalogValidation *catalog.ValidationError
	)

	switch {
	case errors.As(err, &routeValidation):
		response.BadRequest(w, r, "validation error", routeValidation.Errors)
	case errors.As(err, &authValidation):
		response.BadRequest(w, r, "validation error", authValidation.Errors)
	case errors.As(err, &catalogValidation):
		response.BadRequest(w, r, "validation error", catalogValidation.Errors)
	case errors.Is(err, route.ErrRouteNotFound):
		response.NotFound(w, r, "route not found")
	case errors.Is(err, auth.ErrUserNotFound):
		response.NotFound(w, r, "user not found")
	case errors.Is(err, auth.ErrEmailTaken):
		response.Conflict(w, r, "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.Unauthorized(w, r, "invalid email or password")
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		response.ServiceUnavailable(w, r, "factor catalog is temporarily unavailable")
	default:
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
