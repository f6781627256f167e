package markers_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/dalemusser/pinmap/internal/app/mapsync/markers"
	"github.com/dalemusser/pinmap/internal/app/mapsync/surface"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func pin(title string, lat, lng float64) models.Pin {
	return models.Pin{
		ID:           primitive.NewObjectID(),
		CollectionID: primitive.NewObjectID(),
		Title:        title,
		Category:     models.CategoryOther,
		Lat:          lat,
		Lng:          lng,
	}
}

func markerIDs(st surface.State) []string {
	out := make([]string, 0, len(st.Markers))
	for _, m := range st.Markers {
		out = append(out, string(m.ID))
	}
	return out
}

func pinMarkerIDs(pins []models.Pin) []string {
	out := make([]string, 0, len(pins))
	for _, p := range pins {
		out = append(out, string(surface.PinMarker(p.ID.Hex())))
	}
	sort.Strings(out)
	return out
}

func TestReconcile_MarkerSetMatchesVisible(t *testing.T) {
	rec := surface.NewRecorder()
	r := markers.New(rec, nil, zap.NewNop())

	a, b, c := pin("a", 1, 1), pin("b", 2, 2), pin("c", 3, 3)

	steps := [][]models.Pin{
		{a, b},
		{a, b, c},
		{c},
		{},
		{b, a},
	}
	for i, visible := range steps {
		r.Reconcile(visible, nil)
		got := markerIDs(rec.State())
		want := pinMarkerIDs(visible)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("step %d: markers = %v, want %v", i, got, want)
		}
		if r.Count() != len(visible) {
			t.Fatalf("step %d: Count = %d, want %d", i, r.Count(), len(visible))
		}
	}
}

func TestReconcile_MinimalChanges(t *testing.T) {
	rec := surface.NewRecorder()
	r := markers.New(rec, nil, zap.NewNop())

	a, b := pin("a", 1, 1), pin("b", 2, 2)
	colors := map[primitive.ObjectID]string{a.CollectionID: "#ff0000"}
	colorFor := func(id primitive.ObjectID) string {
		if c, ok := colors[id]; ok {
			return c
		}
		return models.DefaultColor
	}

	st := r.Reconcile([]models.Pin{a, b}, colorFor)
	if st.Added != 2 {
		t.Fatalf("Added = %d, want 2", st.Added)
	}

	// Same input: nothing touches the surface.
	before := rec.Ops()
	st = r.Reconcile([]models.Pin{a, b}, colorFor)
	if st != (markers.Stats{}) || rec.Ops() != before {
		t.Fatalf("identical reconcile issued changes: %+v", st)
	}

	// Category change updates in place.
	a.Category = models.CategoryCafe
	st = r.Reconcile([]models.Pin{a, b}, colorFor)
	if st.Updated != 1 || st.Added != 0 || st.Removed != 0 {
		t.Fatalf("category change stats = %+v", st)
	}
	m, _ := rec.Marker(surface.PinMarker(a.ID.Hex()))
	if m.Icon != (surface.Icon{Category: models.CategoryCafe, Color: "#ff0000"}) {
		t.Errorf("icon = %+v", m.Icon)
	}

	// Color change of b's collection updates only b.
	colors[b.CollectionID] = "#00ff00"
	st = r.Reconcile([]models.Pin{a, b}, colorFor)
	if st.Updated != 1 {
		t.Fatalf("color change stats = %+v", st)
	}

	// Moving a pin updates position.
	b.Lat = 5
	r.Reconcile([]models.Pin{a, b}, colorFor)
	m, _ = rec.Marker(surface.PinMarker(b.ID.Hex()))
	if m.Position.Lat != 5 {
		t.Errorf("position not updated: %+v", m.Position)
	}
}

func TestReconcile_SkipsMalformedCoordinates(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := surface.NewRecorder()
	r := markers.New(rec, nil, zap.New(core))

	good := pin("good", 10, 10)
	nan := pin("nan", math.NaN(), 10)
	far := pin("far", 10, 200)

	st := r.Reconcile([]models.Pin{nan, good, far}, nil)
	if st.Added != 1 || st.Skipped != 2 {
		t.Fatalf("stats = %+v, want 1 added 2 skipped", st)
	}
	if !r.Rendered(good.ID) || r.Rendered(nan.ID) || r.Rendered(far.ID) {
		t.Error("wrong pins rendered")
	}
	if n := logs.FilterMessage("skipping pin with malformed coordinates").Len(); n != 2 {
		t.Errorf("warnings = %d, want 2", n)
	}
}

func TestClick_SingleOverlay(t *testing.T) {
	rec := surface.NewRecorder()
	r := markers.New(rec, nil, zap.NewNop())
	a, b := pin("a", 1, 1), pin("b", 2, 2)
	r.Reconcile([]models.Pin{a, b}, nil)

	if _, err := r.Click(a.ID); err != nil {
		t.Fatalf("Click(a): %v", err)
	}
	o, err := r.Click(b.ID)
	if err != nil {
		t.Fatalf("Click(b): %v", err)
	}
	if o.Title != "b" {
		t.Errorf("overlay title = %q", o.Title)
	}

	st := rec.State()
	if st.Overlay == nil || st.Overlay.PinID != b.ID.Hex() {
		t.Fatalf("open overlay = %+v, want b", st.Overlay)
	}
	if open, _ := r.OpenPin(); open != b.ID {
		t.Errorf("OpenPin = %s, want b", open.Hex())
	}

	if _, err := r.Click(primitive.NewObjectID()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Click(unknown) err = %v, want ErrNotFound", err)
	}
}

// strictSurface refuses to open an overlay while another is showing.
type strictSurface struct {
	*surface.Recorder
}

func (s strictSurface) OpenOverlay(o surface.Overlay) error {
	if s.State().Overlay != nil {
		return errors.New("overlay already open")
	}
	return s.Recorder.OpenOverlay(o)
}

func TestClick_ClosesOverlayItDidNotOpen(t *testing.T) {
	rec := surface.NewRecorder()
	r := markers.New(strictSurface{rec}, nil, zap.NewNop())
	a := pin("a", 1, 1)
	r.Reconcile([]models.Pin{a}, nil)

	// The search flow's overlay is up; the reconciler has none open.
	if err := rec.AddMarker(surface.Marker{ID: surface.SearchMarker, Position: surface.LatLng{Lat: 3, Lng: 3}}); err != nil {
		t.Fatalf("AddMarker: %v", err)
	}
	if err := rec.OpenOverlay(surface.Overlay{Anchor: surface.SearchMarker, Title: "Sightglass"}); err != nil {
		t.Fatalf("OpenOverlay: %v", err)
	}

	if _, err := r.Click(a.ID); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if st := rec.State(); st.Overlay == nil || st.Overlay.PinID != a.ID.Hex() {
		t.Errorf("open overlay = %+v, want a", st.Overlay)
	}
}

func TestReconcile_RemovingPinReleasesOverlay(t *testing.T) {
	rec := surface.NewRecorder()
	r := markers.New(rec, nil, zap.NewNop())
	a, b := pin("a", 1, 1), pin("b", 2, 2)
	r.Reconcile([]models.Pin{a, b}, nil)
	if _, err := r.Click(a.ID); err != nil {
		t.Fatalf("Click: %v", err)
	}

	r.Reconcile([]models.Pin{b}, nil)

	if rec.State().Overlay != nil {
		t.Error("overlay still open for a removed pin")
	}
	if _, open := r.OpenPin(); open {
		t.Error("reconciler still tracks an overlay")
	}
}

func TestReconcile_RefreshesOpenOverlay(t *testing.T) {
	rec := surface.NewRecorder()
	r := markers.New(rec, nil, zap.NewNop())
	a := pin("before", 1, 1)
	r.Reconcile([]models.Pin{a}, nil)
	if _, err := r.Click(a.ID); err != nil {
		t.Fatalf("Click: %v", err)
	}

	a.Title = "after"
	r.Reconcile([]models.Pin{a}, nil)

	if o := rec.State().Overlay; o == nil || o.Title != "after" {
		t.Errorf("overlay = %+v, want refreshed title", o)
	}
}

func TestOverlayFor_Actions(t *testing.T) {
	open := true
	p := pin("Blue Bottle", 1, 1)
	p.Address = "66 Mint St"
	p.Rating = 4.5
	p.ReviewCount = 120
	p.OpenNow = &open
	p.Description = "<p>Great <b>pour-over</b></p>"

	owner := markers.OverlayFor(p, true)
	if !reflect.DeepEqual(owner.Actions, []surface.Action{surface.ActionEdit, surface.ActionDelete}) {
		t.Errorf("owner actions = %v", owner.Actions)
	}
	viewer := markers.OverlayFor(p, false)
	if !reflect.DeepEqual(viewer.Actions, []surface.Action{surface.ActionDetails, surface.ActionDirections, surface.ActionShare}) {
		t.Errorf("viewer actions = %v", viewer.Actions)
	}

	want := map[string]string{
		"Address": "66 Mint St",
		"Rating":  "4.5 (120 reviews)",
		"Hours":   "Open now",
		"Notes":   "Great pour-over",
	}
	got := map[string]string{}
	for _, f := range owner.Fields {
		got[f.Label] = f.Value
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestClick_OwnerDecidesActions(t *testing.T) {
	rec := surface.NewRecorder()
	r := markers.New(rec, nil, zap.NewNop())
	viewer := primitive.NewObjectID()
	r.SetViewer(viewer)

	mine := pin("mine", 1, 1)
	mine.UserID = viewer
	theirs := pin("theirs", 2, 2)
	theirs.UserID = primitive.NewObjectID()
	r.Reconcile([]models.Pin{mine, theirs}, nil)

	o, _ := r.Click(mine.ID)
	if o.Actions[0] != surface.ActionEdit {
		t.Errorf("own pin actions = %v", o.Actions)
	}
	o, _ = r.Click(theirs.ID)
	if o.Actions[0] != surface.ActionDetails {
		t.Errorf("other pin actions = %v", o.Actions)
	}
}

type fixedLabel string

func (f fixedLabel) Label(context.Context, float64, float64) string { return string(f) }

func TestDoubleClick(t *testing.T) {
	r := markers.New(surface.NewRecorder(), fixedLabel("Ferry Building"), zap.NewNop())
	ctx := context.Background()

	intent, err := r.DoubleClick(ctx, 37.79, -122.39, true)
	if err != nil {
		t.Fatalf("DoubleClick: %v", err)
	}
	if intent != (markers.CreateIntent{Lat: 37.79, Lng: -122.39, Label: "Ferry Building"}) {
		t.Errorf("intent = %+v", intent)
	}

	if _, err := r.DoubleClick(ctx, 37.79, -122.39, false); !errors.Is(err, apperr.ErrLoginRequired) {
		t.Errorf("anonymous err = %v, want ErrLoginRequired", err)
	}
	if _, err := r.DoubleClick(ctx, 95, 0, true); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad point err = %v, want ErrValidation", err)
	}

	plain := markers.New(surface.NewRecorder(), nil, zap.NewNop())
	intent, _ = plain.DoubleClick(ctx, 45, -122, true)
	if intent.Label != "45.00000, -122.00000" {
		t.Errorf("fallback label = %q", intent.Label)
	}
}
