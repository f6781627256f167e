// Package viewport frames the map camera around the visible pins.
package viewport

import (
	"github.com/dalemusser/pinmap/internal/app/mapsync/surface"
	"github.com/dalemusser/pinmap/internal/domain/models"
)

const (
	DefaultDetailZoom   = 15
	DefaultSidebarWidth = 380
	EdgePadding         = 60
)

// Fitter computes camera commands. The zero value uses the defaults.
type Fitter struct {
	DetailZoom   int
	SidebarWidth int
}

func (f Fitter) zoom() int {
	if f.DetailZoom <= 0 {
		return DefaultDetailZoom
	}
	return f.DetailZoom
}

// Zoom returns the zoom used to frame a single point.
func (f Fitter) Zoom() int {
	return f.zoom()
}

// Padding leaves room for the sidebar on the left edge.
func (f Fitter) Padding() surface.Padding {
	w := f.SidebarWidth
	if w <= 0 {
		w = DefaultSidebarWidth
	}
	return surface.Padding{Top: EdgePadding, Right: EdgePadding, Bottom: EdgePadding, Left: EdgePadding + w}
}

// Bounds returns the smallest box holding every valid position in pins and
// the number of positions it holds.
func Bounds(pins []models.Pin) (surface.Bounds, int) {
	var b surface.Bounds
	n := 0
	for _, p := range pins {
		if !p.HasValidPosition() {
			continue
		}
		if n == 0 {
			b.SW = surface.LatLng{Lat: p.Lat, Lng: p.Lng}
			b.NE = b.SW
		} else {
			b.SW.Lat = min(b.SW.Lat, p.Lat)
			b.SW.Lng = min(b.SW.Lng, p.Lng)
			b.NE.Lat = max(b.NE.Lat, p.Lat)
			b.NE.Lng = max(b.NE.Lng, p.Lng)
		}
		n++
	}
	return b, n
}

// Fit moves the camera to show pins: nothing for no pins, centered at
// detail zoom for one, padded bounds for two or more. The same input always
// yields the same command. It reports whether the camera was moved.
func (f Fitter) Fit(s surface.Surface, pins []models.Pin) bool {
	b, n := Bounds(pins)
	switch n {
	case 0:
		return false
	case 1:
		s.SetCenter(b.SW, f.zoom())
	default:
		s.FitBounds(b, f.Padding())
	}
	return true
}

// Focus centers the camera on one point at detail zoom.
func (f Fitter) Focus(s surface.Surface, lat, lng float64) {
	s.SetCenter(surface.LatLng{Lat: lat, Lng: lng}, f.zoom())
}
