package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/recreationcalc/recreationcalc/internal/api/middleware"
)

// maxBodyBytes bounds request bodies; the largest payloads are factor
// uploads and routes with many segments.
const maxBodyBytes = 1 << 20

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// decodeJSON decodes the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
