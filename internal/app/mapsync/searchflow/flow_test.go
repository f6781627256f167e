package searchflow_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dalemusser/pinmap/internal/app/mapsync/annotations"
	"github.com/dalemusser/pinmap/internal/app/mapsync/searchflow"
	"github.com/dalemusser/pinmap/internal/app/mapsync/surface"
	"github.com/dalemusser/pinmap/internal/app/mapsync/viewport"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"github.com/dalemusser/pinmap/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubResolver map[string]models.PlaceDetails

func (s stubResolver) Resolve(_ context.Context, id string) (models.PlaceDetails, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return models.PlaceDetails{}, apperr.ErrPlaceNotFound
}

var (
	open       = true
	blueBottle = models.PlaceDetails{
		ID:          "bb",
		Name:        "Blue Bottle Coffee",
		Address:     "66 Mint St, San Francisco",
		Lat:         37.7825,
		Lng:         -122.4075,
		Rating:      4.4,
		ReviewCount: 812,
		OpenNow:     &open,
		Types:       []string{"cafe", "food"},
	}
	sightglass = models.PlaceDetails{
		ID:   "sg",
		Name: "Sightglass",
		Lat:  37.7770,
		Lng:  -122.4085,
	}
	candidates = []models.SearchCandidate{
		{ID: "bb", Text: "Blue Bottle Coffee"},
		{ID: "sg", Text: "Sightglass"},
		{ID: "gone", Text: "Closed forever"},
	}
)

type harness struct {
	mp    *testutil.MemPlatform
	user  primitive.ObjectID
	store *annotations.Store
	rec   *surface.Recorder
	flow  *searchflow.Flow
}

func newHarness(t *testing.T) harness {
	t.Helper()
	h := harness{mp: testutil.NewMemPlatform(), user: primitive.NewObjectID(), rec: surface.NewRecorder()}
	h.store = annotations.New(h.mp, h.user, zap.NewNop())
	if err := h.store.Load(context.Background(), h.user); err != nil {
		t.Fatalf("Load: %v", err)
	}
	resolver := stubResolver{"bb": blueBottle, "sg": sightglass}
	h.flow = searchflow.New(resolver, h.store, h.rec, viewport.Fitter{}, zap.NewNop())
	h.flow.ShowCandidates("coffee", candidates)
	return h
}

func (h harness) searchMarkers() []surface.Marker {
	var out []surface.Marker
	for _, m := range h.rec.State().Markers {
		if m.ID == surface.SearchMarker {
			out = append(out, m)
		}
	}
	return out
}

func TestShowCandidates(t *testing.T) {
	h := newHarness(t)
	if h.flow.State() != searchflow.StateCandidatesShown {
		t.Fatalf("state = %s", h.flow.State())
	}
	h.flow.ShowCandidates("", nil)
	if h.flow.State() != searchflow.StateIdle {
		t.Errorf("state after empty results = %s, want idle", h.flow.State())
	}
}

func TestSelect_DropsOneTransientMarker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.flow.Select(ctx, "bb"); err != nil {
		t.Fatalf("Select(bb): %v", err)
	}
	if h.flow.State() != searchflow.StatePinDropped {
		t.Fatalf("state = %s", h.flow.State())
	}
	cam := h.rec.State().Camera
	if cam.Mode != "center" || cam.Zoom != viewport.DefaultDetailZoom || cam.Center.Lat != blueBottle.Lat {
		t.Errorf("camera = %+v, want centered on place at detail zoom", cam)
	}

	if _, err := h.flow.Select(ctx, "sg"); err != nil {
		t.Fatalf("Select(sg): %v", err)
	}
	ms := h.searchMarkers()
	if len(ms) != 1 {
		t.Fatalf("transient markers = %d, want 1", len(ms))
	}
	if ms[0].Position.Lat != sightglass.Lat {
		t.Errorf("marker at %v, want second place", ms[0].Position)
	}
}

type noOverlaySurface struct {
	*surface.Recorder
}

func (noOverlaySurface) OpenOverlay(surface.Overlay) error {
	return errors.New("overlay layer unavailable")
}

func TestSelect_OverlayFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := surface.NewRecorder()
	user := primitive.NewObjectID()
	store := annotations.New(testutil.NewMemPlatform(), user, zap.NewNop())
	flow := searchflow.New(stubResolver{"bb": blueBottle}, store, noOverlaySurface{rec}, viewport.Fitter{}, zap.New(core))
	flow.ShowCandidates("coffee", candidates)

	if _, err := flow.Select(context.Background(), "bb"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if flow.State() != searchflow.StatePinDropped {
		t.Errorf("state = %s, want pin dropped", flow.State())
	}
	if n := logs.FilterMessage("search overlay failed").Len(); n != 1 {
		t.Errorf("overlay failure warnings = %d, want 1", n)
	}
}

func TestSelect_FailureKeepsCandidates(t *testing.T) {
	h := newHarness(t)

	_, err := h.flow.Select(context.Background(), "gone")
	if !errors.Is(err, apperr.ErrPlaceNotFound) {
		t.Fatalf("err = %v, want ErrPlaceNotFound", err)
	}

	v := h.flow.View()
	if v.State != searchflow.StateCandidatesShown {
		t.Errorf("state = %s, want candidates_shown", v.State)
	}
	if v.Error == "" {
		t.Error("no inline error")
	}
	if !reflect.DeepEqual(v.Candidates, candidates) {
		t.Errorf("candidates changed: %+v", v.Candidates)
	}
	if len(h.searchMarkers()) != 0 {
		t.Error("marker dropped for a failed resolve")
	}
}

func TestSelect_UnknownCandidate(t *testing.T) {
	h := newHarness(t)
	if _, err := h.flow.Select(context.Background(), "nope"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSave_NewCollectionThenPin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.flow.Select(ctx, "bb"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	pin, err := h.flow.Save(ctx, searchflow.SaveRequest{
		NewCollection: &annotations.CollectionInput{Title: "Coffee", Color: "#6f4e37"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if pin.Title != "Blue Bottle Coffee" || pin.Category != models.CategoryCafe {
		t.Errorf("pin = %q/%q", pin.Title, pin.Category)
	}
	if pin.PlaceID != "bb" || pin.Rating != 4.4 || pin.ReviewCount != 812 || pin.Address == "" || pin.OpenNow == nil || !*pin.OpenNow {
		t.Errorf("place metadata missing: %+v", pin)
	}

	snap := h.store.Snapshot()
	if len(snap.Collections) != 1 || snap.Collections[0].Title != "Coffee" {
		t.Fatalf("collections = %+v", snap.Collections)
	}
	if pin.CollectionID != snap.Collections[0].ID {
		t.Error("pin not in the new collection")
	}
	if snap.ColorFor(pin.CollectionID) != "#6f4e37" {
		t.Errorf("color = %q", snap.ColorFor(pin.CollectionID))
	}
	if h.flow.State() != searchflow.StateAddedToCollection {
		t.Errorf("state = %s", h.flow.State())
	}
	if len(h.searchMarkers()) != 0 {
		t.Error("transient marker left after save")
	}
}

func TestSave_PinFailureKeepsCollectionForRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.flow.Select(ctx, "bb"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	h.mp.FailNext(testutil.OpCreatePin, errors.New("write conflict"))
	req := searchflow.SaveRequest{NewCollection: &annotations.CollectionInput{Title: "Coffee"}}
	if _, err := h.flow.Save(ctx, req); err == nil {
		t.Fatal("expected pin failure")
	}
	if h.flow.State() != searchflow.StatePinDropped {
		t.Errorf("state after failure = %s, want pin_dropped", h.flow.State())
	}
	if len(h.store.Snapshot().Collections) != 1 {
		t.Fatal("collection not kept after pin failure")
	}

	pin, err := h.flow.Save(ctx, req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := h.mp.Calls(testutil.OpCreateCollection); n != 1 {
		t.Errorf("CreateCollection calls = %d, want 1", n)
	}
	if pin.CollectionID != h.store.Snapshot().Collections[0].ID {
		t.Error("retry used a different collection")
	}
}

func TestSave_CollectionFailureAbortsBeforePin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.flow.Select(ctx, "bb"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	h.mp.FailNext(testutil.OpCreateCollection, errors.New("down"))
	_, err := h.flow.Save(ctx, searchflow.SaveRequest{NewCollection: &annotations.CollectionInput{Title: "Coffee"}})
	if err == nil {
		t.Fatal("expected collection failure")
	}
	if n := h.mp.Calls(testutil.OpCreatePin); n != 0 {
		t.Errorf("CreatePin calls = %d, want 0", n)
	}
	if h.flow.View().Error == "" {
		t.Error("no inline error")
	}
}

func TestSave_ExistingCollection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	coll, err := h.store.CreateCollection(ctx, annotations.CollectionInput{Title: "Coffee"})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := h.flow.Select(ctx, "sg"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	pin, err := h.flow.Save(ctx, searchflow.SaveRequest{CollectionID: coll.ID, Title: "Sightglass SoMa"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if pin.CollectionID != coll.ID || pin.Title != "Sightglass SoMa" || pin.Category != models.CategoryOther {
		t.Errorf("pin = %+v", pin)
	}
}

func TestSave_RequiresDroppedPin(t *testing.T) {
	h := newHarness(t)
	_, err := h.flow.Save(context.Background(), searchflow.SaveRequest{CollectionID: primitive.NewObjectID()})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestDiscard(t *testing.T) {
	h := newHarness(t)
	if _, err := h.flow.Select(context.Background(), "bb"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	h.flow.Discard()

	if h.flow.State() != searchflow.StateDiscarded {
		t.Errorf("state = %s", h.flow.State())
	}
	if len(h.searchMarkers()) != 0 {
		t.Error("transient marker left after discard")
	}
	if len(h.store.Snapshot().Pins) != 0 {
		t.Error("discard saved a pin")
	}
}
