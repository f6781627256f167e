// internal/app/features/mapview/view.go
package mapview

import (
	"net/http"

	uierrors "github.com/dalemusser/pinmap/internal/app/features/errors"
	"github.com/dalemusser/pinmap/internal/app/mapsync"
	"github.com/dalemusser/pinmap/internal/app/mapsync/viewfilter"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/app/system/timeouts"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// State handles GET /map/state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, ctrl.State())
}

// Load handles POST /map/load: reload the signed-in user's pins and
// collections.
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r, timeouts.Medium())
	defer cancel()
	if err := ctrl.Load(ctx, uid); err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, ctrl.State())
}

// SwitchTab handles POST /map/tab/{tab}.
func (h *Handler) SwitchTab(w http.ResponseWriter, r *http.Request) {
	tab, err := viewfilter.ParseTab(chi.URLParam(r, "tab"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r, timeouts.Medium())
	defer cancel()
	if _, err := ctrl.SwitchTab(ctx, tab); err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, ctrl.State())
}

type selectRequest struct {
	ID string `json:"id"`
}

type selectResponse struct {
	Pins  []models.Pin  `json:"pins"`
	State mapsync.State `json:"state"`
}

// SelectCollection handles POST /map/collections/select. An empty id
// selects all of the tab's pins.
func (h *Handler) SelectCollection(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var id *primitive.ObjectID
	if req.ID != "" {
		oid, err := primitive.ObjectIDFromHex(req.ID)
		if err != nil {
			h.fail(w, r, apperr.Invalid("id", "bad id"))
			return
		}
		id = &oid
	}

	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := withTimeout(r, timeouts.Medium())
	defer cancel()
	pins, err := ctrl.SelectCollection(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, selectResponse{Pins: pins, State: ctrl.State()})
}

// ClickMarker handles POST /map/markers/{id}/click.
func (h *Handler) ClickMarker(w http.ResponseWriter, r *http.Request) {
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
	o, err := ctrl.ClickMarker(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, o)
}

// CloseOverlay handles POST /map/overlay/close.
func (h *Handler) CloseOverlay(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl.CloseOverlay()
	w.WriteHeader(http.StatusNoContent)
}

// MoveCamera handles POST /map/camera?lat=&lng=.
func (h *Handler) MoveCamera(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := latLngQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl.MoveCamera(lat, lng)
	w.WriteHeader(http.StatusNoContent)
}

// DoubleClick handles POST /map/dblclick?lat=&lng=.
func (h *Handler) DoubleClick(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := latLngQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl, err := h.controller(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	intent, err := ctrl.DoubleClick(r.Context(), lat, lng)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, intent)
}

// Heartbeat handles POST /map/heartbeat. An open map page calls it so its
// session is not swept as idle.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if _, err := h.controller(w, r); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
