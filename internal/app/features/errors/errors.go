// internal/app/features/errors/errors.go
package errors

import (
	"net/http"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
)

// Handler serves the fallback error endpoints.
type Handler struct{}

// NewHandler constructs an errors Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Forbidden handles GET /forbidden.
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	Render(w, r, nil, apperr.ErrPermissionDenied)
}

// Unauthorized handles GET /unauthorized.
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	Render(w, r, nil, apperr.ErrLoginRequired)
}

// NotFound is the router's 404 handler.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	Render(w, r, nil, apperr.ErrNotFound)
}
