// Package markers keeps the markers on a map surface in step with the
// visible pins and owns the single open overlay.
package markers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dalemusser/pinmap/internal/app/mapsync/placesearch"
	"github.com/dalemusser/pinmap/internal/app/mapsync/surface"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/app/system/htmlsanitize"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Labeler turns a coordinate into a human-readable label.
type Labeler interface {
	Label(ctx context.Context, lat, lng float64) string
}

// CreateIntent asks the UI to open the new-pin form at a point.
type CreateIntent struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
}

// Stats summarizes one Reconcile pass.
type Stats struct {
	Added   int
	Updated int
	Removed int
	Skipped int
}

type entry struct {
	pin    models.Pin
	marker surface.Marker
}

// Reconciler tracks which pins are rendered on one surface. Each pin moves
// through absent -> rendered -> (updated | removed). Calls must be
// serialized by the caller; DoubleClick reads no reconciler state and may
// run concurrently with the rest.
type Reconciler struct {
	surf    surface.Surface
	labeler Labeler
	log     *zap.Logger

	viewer   primitive.ObjectID
	rendered map[primitive.ObjectID]entry
	overlay  *primitive.ObjectID
	colorFor func(primitive.ObjectID) string
}

// New returns a reconciler with nothing rendered. labeler may be nil, in
// which case double-click labels are raw coordinates.
func New(surf surface.Surface, labeler Labeler, log *zap.Logger) *Reconciler {
	return &Reconciler{
		surf:     surf,
		labeler:  labeler,
		log:      log,
		rendered: make(map[primitive.ObjectID]entry),
		colorFor: func(primitive.ObjectID) string { return models.DefaultColor },
	}
}

// SetViewer sets the user whose ownership decides overlay actions.
func (r *Reconciler) SetViewer(id primitive.ObjectID) {
	r.viewer = id
}

func markerFor(p models.Pin, color string) surface.Marker {
	return surface.Marker{
		ID:       surface.PinMarker(p.ID.Hex()),
		Position: surface.LatLng{Lat: p.Lat, Lng: p.Lng},
		Icon:     surface.Icon{Category: models.NormalizeCategory(p.Category), Color: color},
		Title:    p.Title,
	}
}

// Reconcile makes the surface show exactly the pins in visible. Markers of
// vanished pins are removed, new pins get a marker, and a marker whose
// position, icon or title changed is updated in place. Untouched markers
// produce no surface calls. Pins with malformed coordinates are skipped
// with a warning. colorFor maps a collection id to its color.
func (r *Reconciler) Reconcile(visible []models.Pin, colorFor func(primitive.ObjectID) string) Stats {
	if colorFor != nil {
		r.colorFor = colorFor
	}

	var st Stats
	wanted := make(map[primitive.ObjectID]entry, len(visible))
	for _, p := range visible {
		if _, dup := wanted[p.ID]; dup {
			continue
		}
		if !p.HasValidPosition() {
			st.Skipped++
			r.log.Warn("skipping pin with malformed coordinates",
				zap.String("pin_id", p.ID.Hex()),
				zap.Float64("lat", p.Lat),
				zap.Float64("lng", p.Lng))
			continue
		}
		wanted[p.ID] = entry{pin: p, marker: markerFor(p, r.colorFor(p.CollectionID))}
	}

	for id, e := range r.rendered {
		if _, keep := wanted[id]; keep {
			continue
		}
		if r.overlay != nil && *r.overlay == id {
			r.surf.CloseOverlay()
			r.overlay = nil
		}
		r.surf.RemoveMarker(e.marker.ID)
		delete(r.rendered, id)
		st.Removed++
	}

	for id, want := range wanted {
		have, ok := r.rendered[id]
		switch {
		case !ok:
			if err := r.surf.AddMarker(want.marker); err != nil {
				st.Skipped++
				r.log.Warn("add marker failed", zap.String("pin_id", id.Hex()), zap.Error(err))
				continue
			}
			st.Added++
		case have.marker != want.marker:
			if err := r.surf.UpdateMarker(want.marker); err != nil {
				r.log.Warn("update marker failed", zap.String("pin_id", id.Hex()), zap.Error(err))
				continue
			}
			st.Updated++
		}
		r.rendered[id] = want

		if ok && r.overlay != nil && *r.overlay == id && have.pin != want.pin {
			if err := r.surf.OpenOverlay(r.overlayFor(want.pin)); err != nil {
				r.log.Warn("refresh overlay failed", zap.String("pin_id", id.Hex()), zap.Error(err))
			}
		}
	}

	if st.Added+st.Updated+st.Removed+st.Skipped > 0 {
		r.log.Debug("markers reconciled",
			zap.Int("added", st.Added),
			zap.Int("updated", st.Updated),
			zap.Int("removed", st.Removed),
			zap.Int("skipped", st.Skipped),
			zap.Int("rendered", len(r.rendered)))
	}
	return st
}

// Rendered reports whether pinID currently has a marker.
func (r *Reconciler) Rendered(pinID primitive.ObjectID) bool {
	_, ok := r.rendered[pinID]
	return ok
}

// Count returns the number of rendered markers.
func (r *Reconciler) Count() int {
	return len(r.rendered)
}

// Clear removes every marker and closes the overlay.
func (r *Reconciler) Clear() {
	r.CloseOverlay()
	for id, e := range r.rendered {
		r.surf.RemoveMarker(e.marker.ID)
		delete(r.rendered, id)
	}
}

/* -------------------------------------------------------------------------- */
/* overlay                                                                    */
/* -------------------------------------------------------------------------- */

// Click opens the overlay of a rendered pin. Whatever overlay the surface
// shows is closed first, including one opened by the search flow.
func (r *Reconciler) Click(pinID primitive.ObjectID) (surface.Overlay, error) {
	e, ok := r.rendered[pinID]
	if !ok {
		return surface.Overlay{}, apperr.ErrNotFound
	}
	r.surf.CloseOverlay()
	r.overlay = nil

	o := r.overlayFor(e.pin)
	if err := r.surf.OpenOverlay(o); err != nil {
		return surface.Overlay{}, err
	}
	id := pinID
	r.overlay = &id
	return o, nil
}

// CloseOverlay closes the open overlay, if any.
func (r *Reconciler) CloseOverlay() {
	if r.overlay == nil {
		return
	}
	r.surf.CloseOverlay()
	r.overlay = nil
}

// OpenPin returns the pin whose overlay is open.
func (r *Reconciler) OpenPin() (primitive.ObjectID, bool) {
	if r.overlay == nil {
		return primitive.NilObjectID, false
	}
	return *r.overlay, true
}

func (r *Reconciler) overlayFor(p models.Pin) surface.Overlay {
	return OverlayFor(p, p.UserID == r.viewer && !r.viewer.IsZero())
}

// OverlayFor builds the overlay view-model of a pin. Owners get edit and
// delete; everyone else gets details, directions and share.
func OverlayFor(p models.Pin, owner bool) surface.Overlay {
	o := surface.Overlay{
		Anchor: surface.PinMarker(p.ID.Hex()),
		PinID:  p.ID.Hex(),
		Title:  p.Title,
	}

	o.Fields = append(o.Fields, surface.Field{Label: "Category", Value: models.NormalizeCategory(p.Category)})
	if p.Address != "" {
		o.Fields = append(o.Fields, surface.Field{Label: "Address", Value: p.Address})
	}
	if p.Rating > 0 {
		v := strconv.FormatFloat(p.Rating, 'f', 1, 64)
		if p.ReviewCount > 0 {
			v += fmt.Sprintf(" (%d reviews)", p.ReviewCount)
		}
		o.Fields = append(o.Fields, surface.Field{Label: "Rating", Value: v})
	}
	if p.OpenNow != nil {
		v := "Closed"
		if *p.OpenNow {
			v = "Open now"
		}
		o.Fields = append(o.Fields, surface.Field{Label: "Hours", Value: v})
	}
	if d := htmlsanitize.PlainText(p.Description); d != "" {
		o.Fields = append(o.Fields, surface.Field{Label: "Notes", Value: d})
	}

	if owner {
		o.Actions = []surface.Action{surface.ActionEdit, surface.ActionDelete}
	} else {
		o.Actions = []surface.Action{surface.ActionDetails, surface.ActionDirections, surface.ActionShare}
	}
	return o
}

/* -------------------------------------------------------------------------- */
/* double click                                                               */
/* -------------------------------------------------------------------------- */

// DoubleClick handles a double click on empty map. A signed-in user gets a
// CreateIntent carrying the point and its reverse-geocoded label; anyone
// else gets apperr.ErrLoginRequired so the UI can prompt for login.
func (r *Reconciler) DoubleClick(ctx context.Context, lat, lng float64, signedIn bool) (CreateIntent, error) {
	if !models.ValidLatLng(lat, lng) {
		return CreateIntent{}, apperr.Invalid("position", "coordinates are out of range")
	}
	if !signedIn {
		return CreateIntent{}, apperr.ErrLoginRequired
	}
	label := placesearch.CoordinateLabel(lat, lng)
	if r.labeler != nil {
		label = r.labeler.Label(ctx, lat, lng)
	}
	return CreateIntent{Lat: lat, Lng: lng, Label: label}, nil
}
