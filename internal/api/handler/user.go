package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/api/response"
	"github.com/recreationcalc/recreationcalc/internal/auth"
)

// UserHandler handles account endpoints for the authenticated user.
type UserHandler struct {
	authService *auth.Service
	logger      zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(authService *auth.Service, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		authService: authService,
		logger:      logger,
	}
}

// GetProfile handles GET /v1/users/profile - get the current account.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.Profile(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, user)
}

// ChangeEmail handles PUT /v1/users/email - change the login email.
func (h *UserHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	user, err := h.authService.ChangeEmail(r.Context(), GetUserID(r.Context()), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, user)
}

// ChangePassword handles PUT /v1/users/password - change the password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), GetUserID(r.Context()), &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.NoContent(w, r)
}
