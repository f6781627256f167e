// internal/app/features/errors/render.go
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"go.uber.org/zap"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

// Status maps an error to its HTTP status.
func Status(err error) int {
	switch apperr.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_owner", "permission_denied":
		return http.StatusForbidden
	case "not_found", "place_not_found":
		return http.StatusNotFound
	case "login_required":
		return http.StatusUnauthorized
	case "provider":
		return http.StatusBadGateway
	case "partial_failure":
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// message is the user-facing text for err. Internal errors never leak
// their detail.
func message(err error) string {
	var ve *apperr.ValidationError
	if stderrors.As(err, &ve) {
		return ve.Msg
	}
	switch apperr.Kind(err) {
	case "not_owner":
		return "You can only change your own pins and collections."
	case "permission_denied":
		return "This collection is private."
	case "place_not_found":
		return "That place could not be found."
	case "not_found":
		return "Not found."
	case "login_required":
		return "Sign in to continue."
	case "provider":
		return "The service is unavailable right now. Try again."
	case "partial_failure":
		return err.Error()
	default:
		return "Something went wrong."
	}
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Render writes err as a JSON error. Internal errors are logged.
func Render(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError && log != nil {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	body := Body{Error: message(err), Kind: apperr.Kind(err)}
	var ve *apperr.ValidationError
	if stderrors.As(err, &ve) {
		body.Field = ve.Field
	}
	WriteJSON(w, status, body)
}

// RenderPartial writes v with 207 and the warning carried by err.
func RenderPartial(w http.ResponseWriter, v any, err error) {
	WriteJSON(w, http.StatusMultiStatus, map[string]any{
		"result":  v,
		"warning": err.Error(),
		"kind":    apperr.Kind(err),
	})
}
