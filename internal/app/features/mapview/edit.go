// internal/app/features/mapview/edit.go
package mapview

import (
	"errors"
	"net/http"

	uierrors "github.com/dalemusser/pinmap/internal/app/features/errors"
	"github.com/dalemusser/pinmap/internal/app/mapsync/annotations"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/app/system/timeouts"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
)

/* -------------------------------------------------------------------------- */
/* pins                                                                       */
/* -------------------------------------------------------------------------- */

// CreatePin handles POST /map/pins.
func (h *Handler) CreatePin(w http.ResponseWriter, r *http.Request) {
	var in annotations.PinInput
	if err := decode(w, r, &in); err != nil {
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
	pin, err := ctrl.CreatePin(ctx, in)
	switch {
	case err == nil:
		uierrors.WriteJSON(w, http.StatusCreated, pin)
	case errors.Is(err, apperr.ErrPartialFailure):
		uierrors.RenderPartial(w, pin, err)
	default:
		h.fail(w, r, err)
	}
}

// UpdatePin handles PATCH /map/pins/{id}.
func (h *Handler) UpdatePin(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch models.PinPatch
	if err := decode(w, r, &patch); err != nil {
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
	pin, err := ctrl.UpdatePin(ctx, id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, pin)
}

// DeletePin handles DELETE /map/pins/{id}.
func (h *Handler) DeletePin(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
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
	if err := ctrl.DeletePin(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* -------------------------------------------------------------------------- */
/* collections                                                                */
/* -------------------------------------------------------------------------- */

// CreateCollection handles POST /map/collections.
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var in annotations.CollectionInput
	if err := decode(w, r, &in); err != nil {
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
	coll, err := ctrl.CreateCollection(ctx, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusCreated, coll)
}

// UpdateCollection handles PATCH /map/collections/{id}.
func (h *Handler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch models.CollectionPatch
	if err := decode(w, r, &patch); err != nil {
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
	coll, err := ctrl.UpdateCollection(ctx, id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, coll)
}

// DeleteCollection handles DELETE /map/collections/{id}?confirm=true. The
// collection's pins go with it, so the client must confirm.
func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if query.Get(r, "confirm") != "true" {
		h.fail(w, r, apperr.Invalid("confirm", "deleting a collection removes all of its pins; confirm to continue"))
		return
	}
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r, timeouts.Long())
	defer cancel()
	n, err := ctrl.DeleteCollection(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]int{"pins_removed": n})
}

// RefreshStats handles POST /map/stats/refresh.
func (h *Handler) RefreshStats(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r, timeouts.Medium())
	defer cancel()
	if err := ctrl.RefreshStats(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, ctrl.Snapshot().Collections)
}

/* -------------------------------------------------------------------------- */
/* uploads                                                                    */
/* -------------------------------------------------------------------------- */

type uploadRequest struct {
	Name string `json:"name"`
}

type completeRequest struct {
	URL string `json:"url"`
}

// BeginUpload handles POST /map/uploads.
func (h *Handler) BeginUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusCreated, map[string]string{"id": ctrl.BeginUpload(req.Name)})
}

// CompleteUpload handles POST /map/uploads/{id}/complete. kept is false
// when the image was removed while it uploaded.
func (h *Handler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.URL == "" {
		h.fail(w, r, apperr.Invalid("url", "url is required"))
		return
	}
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	kept := ctrl.CompleteUpload(chi.URLParam(r, "id"), req.URL)
	uierrors.WriteJSON(w, http.StatusOK, map[string]bool{"kept": kept})
}

// RemoveUpload handles DELETE /map/uploads/{id}.
func (h *Handler) RemoveUpload(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ctrl.RemoveUpload(chi.URLParam(r, "id")) {
		h.fail(w, r, apperr.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
