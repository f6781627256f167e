// Package surface defines the contract between the sync engine and a map
// widget, plus an in-memory widget that records the resulting map state.
package surface

import (
	"fmt"

	"github.com/dalemusser/pinmap/internal/domain/models"
)

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a south-west / north-east box.
type Bounds struct {
	SW LatLng `json:"sw"`
	NE LatLng `json:"ne"`
}

// Contains reports whether p lies inside b (edges inclusive).
func (b Bounds) Contains(p LatLng) bool {
	return p.Lat >= b.SW.Lat && p.Lat <= b.NE.Lat && p.Lng >= b.SW.Lng && p.Lng <= b.NE.Lng
}

// Padding is per-edge screen padding in pixels.
type Padding struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Icon keys a marker image. Two markers with equal icons look identical.
type Icon struct {
	Category string `json:"category"`
	Color    string `json:"color"`
}

// Key is the stable identity of the icon image.
func (i Icon) Key() string {
	return i.Category + "|" + i.Color
}

// MarkerID identifies a marker on the surface.
type MarkerID string

// PinMarker returns the marker id used for a persisted pin.
func PinMarker(pinID string) MarkerID {
	return MarkerID("pin:" + pinID)
}

// SearchMarker is the id of the transient search-result marker. At most one
// exists at a time.
const SearchMarker MarkerID = "search"

// Marker is one marker placement.
type Marker struct {
	ID       MarkerID `json:"id"`
	Position LatLng   `json:"position"`
	Icon     Icon     `json:"icon"`
	Title    string   `json:"title,omitempty"`
}

// Action is one button on an overlay.
type Action string

const (
	ActionEdit       Action = "edit"
	ActionDelete     Action = "delete"
	ActionDetails    Action = "view_details"
	ActionDirections Action = "directions"
	ActionShare      Action = "share"
	ActionSave       Action = "save_to_collection"
	ActionDiscard    Action = "discard"
)

// Field is one labelled line of overlay content.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Overlay is declarative content for the panel anchored to a marker. The
// rendering layer decides how it looks.
type Overlay struct {
	Anchor  MarkerID `json:"anchor"`
	PinID   string   `json:"pin_id,omitempty"`
	Title   string   `json:"title"`
	Fields  []Field  `json:"fields,omitempty"`
	Actions []Action `json:"actions"`
}

// Surface is the map widget as seen by the sync engine. The widget shows
// at most one overlay.
type Surface interface {
	AddMarker(m Marker) error
	UpdateMarker(m Marker) error
	RemoveMarker(id MarkerID)
	// OpenOverlay replaces any open overlay with o.
	OpenOverlay(o Overlay) error
	// CloseOverlay closes the open overlay. It is a no-op when none is open.
	CloseOverlay()
	SetCenter(c LatLng, zoom int)
	FitBounds(b Bounds, p Padding)
}

// ErrNoMarker is returned when an operation targets a marker that is not
// on the surface.
type ErrNoMarker struct {
	ID MarkerID
}

func (e *ErrNoMarker) Error() string {
	return fmt.Sprintf("surface: no marker %q", e.ID)
}

// ValidPosition reports whether p can be placed on the surface.
func ValidPosition(p LatLng) bool {
	return models.ValidLatLng(p.Lat, p.Lng)
}
