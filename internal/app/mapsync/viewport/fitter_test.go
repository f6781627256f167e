package viewport

import (
	"math"
	"testing"

	"github.com/dalemusser/pinmap/internal/app/mapsync/surface"
	"github.com/dalemusser/pinmap/internal/domain/models"
)

func at(lat, lng float64) models.Pin {
	return models.Pin{Lat: lat, Lng: lng}
}

func TestFit_NoPins(t *testing.T) {
	rec := surface.NewRecorder()
	if (Fitter{}).Fit(rec, nil) {
		t.Error("Fit(nil) reported a move")
	}
	if rec.Ops().CameraOps != 0 {
		t.Error("camera moved for no pins")
	}
}

func TestFit_OnePin(t *testing.T) {
	rec := surface.NewRecorder()
	(Fitter{}).Fit(rec, []models.Pin{at(37.78, -122.40)})

	cam := rec.State().Camera
	if cam.Mode != "center" || cam.Zoom != 15 {
		t.Fatalf("camera = %+v, want center at zoom 15", cam)
	}
	if *cam.Center != (surface.LatLng{Lat: 37.78, Lng: -122.40}) {
		t.Errorf("center = %+v", *cam.Center)
	}
}

func TestFit_ManyPins(t *testing.T) {
	rec := surface.NewRecorder()
	pins := []models.Pin{at(37.7, -122.5), at(37.9, -122.3), at(37.8, -122.4), at(math.NaN(), 0)}
	(Fitter{}).Fit(rec, pins)

	cam := rec.State().Camera
	if cam.Mode != "bounds" {
		t.Fatalf("mode = %q, want bounds", cam.Mode)
	}
	wantB := surface.Bounds{SW: surface.LatLng{Lat: 37.7, Lng: -122.5}, NE: surface.LatLng{Lat: 37.9, Lng: -122.3}}
	if *cam.Bounds != wantB {
		t.Errorf("bounds = %+v, want %+v", *cam.Bounds, wantB)
	}
	wantP := surface.Padding{Top: 60, Right: 60, Bottom: 60, Left: 440}
	if *cam.Padding != wantP {
		t.Errorf("padding = %+v, want %+v", *cam.Padding, wantP)
	}
	for _, p := range pins[:3] {
		if !cam.Bounds.Contains(surface.LatLng{Lat: p.Lat, Lng: p.Lng}) {
			t.Errorf("bounds exclude %v,%v", p.Lat, p.Lng)
		}
	}
}

func TestFit_Idempotent(t *testing.T) {
	rec := surface.NewRecorder()
	f := Fitter{SidebarWidth: 300}
	pins := []models.Pin{at(1, 1), at(2, 2)}

	f.Fit(rec, pins)
	first := rec.State().Camera
	f.Fit(rec, pins)
	second := rec.State().Camera

	if *first.Bounds != *second.Bounds || *first.Padding != *second.Padding {
		t.Errorf("second fit differs: %+v vs %+v", first, second)
	}
	if first.Padding.Left != 360 {
		t.Errorf("left padding = %d, want 360", first.Padding.Left)
	}
}
