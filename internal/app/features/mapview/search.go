// internal/app/features/mapview/search.go
package mapview

import (
	"errors"
	"net/http"

	uierrors "github.com/dalemusser/pinmap/internal/app/features/errors"
	"github.com/dalemusser/pinmap/internal/app/mapsync/searchflow"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
)

// Search handles GET /map/search?q=. A request overtaken by a newer one
// gets 409.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r, timeouts.Provider()+timeouts.Short())
	defer cancel()
	res, err := ctrl.Search(ctx, query.Search(r, "q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, res)
}

// SelectCandidate handles POST /map/search/{candidateID}/select.
func (h *Handler) SelectCandidate(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r, timeouts.Provider())
	defer cancel()
	place, err := ctrl.SelectCandidate(ctx, chi.URLParam(r, "candidateID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, place)
}

// SaveCandidate handles POST /map/search/save.
func (h *Handler) SaveCandidate(w http.ResponseWriter, r *http.Request) {
	var req searchflow.SaveRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r, timeouts.Short())
	defer cancel()
	pin, err := ctrl.SaveCandidate(ctx, req)
	switch {
	case err == nil:
		uierrors.WriteJSON(w, http.StatusCreated, pin)
	case errors.Is(err, apperr.ErrPartialFailure):
		uierrors.RenderPartial(w, pin, err)
	default:
		h.fail(w, r, err)
	}
}

// DiscardCandidate handles POST /map/search/discard.
func (h *Handler) DiscardCandidate(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl.DiscardCandidate()
	w.WriteHeader(http.StatusNoContent)
}
