package mapview_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/pinmap/internal/app/features/mapview"
	"github.com/dalemusser/pinmap/internal/app/mapsync"
	"github.com/dalemusser/pinmap/internal/app/mapsync/placesearch"
	"github.com/dalemusser/pinmap/internal/app/mapsync/surface"
	"github.com/dalemusser/pinmap/internal/app/mapsync/viewfilter"
	"github.com/dalemusser/pinmap/internal/app/system/auth"
	"github.com/dalemusser/pinmap/internal/app/system/ratelimit"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"github.com/dalemusser/pinmap/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var ferryBuilding = models.PlaceDetails{
	ID:      "place-ferry",
	Name:    "Ferry Building Marketplace",
	Address: "1 Ferry Building, San Francisco",
	Lat:     37.7955,
	Lng:     -122.3937,
	Types:   []string{"shopping_mall"},
}

type fixture struct {
	mp     *testutil.MemPlatform
	places *testutil.StubPlaces
	reg    *mapview.Registry
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newLimitedFixture(t, nil)
}

func newLimitedFixture(t *testing.T, lookups *ratelimit.Limiter) *fixture {
	t.Helper()
	f := &fixture{
		mp:     testutil.NewMemPlatform(),
		places: testutil.NewStubPlaces(ferryBuilding),
	}
	f.reg = mapview.NewRegistry(func() *mapsync.Controller {
		return mapsync.New(mapsync.Deps{
			Backend:  f.mp,
			Source:   f.mp,
			Places:   f.places,
			Geocoder: f.places,
			Log:      zap.NewNop(),
		}, mapsync.Config{Search: placesearch.Options{Debounce: time.Millisecond}})
	}, zap.NewNop())
	t.Cleanup(f.reg.CloseAll)

	sm, err := auth.NewSessionManager(strings.Repeat("k", 32), "pinmap-test", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	h := mapview.NewHandler(f.reg, []byte(strings.Repeat("h", 32)), false, zap.NewNop())
	h.Lookups = lookups

	r := chi.NewRouter()
	r.Mount("/map", mapview.Routes(h, sm))
	f.router = r
	return f
}

func (f *fixture) do(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) as(user testutil.TestUser, method, target, body string) *testutil.ResponseRecorder {
	return f.do(testutil.NewAuthenticatedRequest(method, target, body, user))
}

func decodeBody(t *testing.T, rec *testutil.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func TestCoffeeScenario(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser("Ada")

	rec := f.as(user, http.MethodPost, "/map/collections", `{"title":"Coffee","is_public":false}`)
	rec.AssertStatus(t, http.StatusCreated)
	var coll models.Collection
	decodeBody(t, rec, &coll)

	body := fmt.Sprintf(`{"collection_id":%q,"title":"Blue Bottle","category":"cafe","lat":37.7825,"lng":-122.4075}`, coll.ID.Hex())
	rec = f.as(user, http.MethodPost, "/map/pins", body)
	rec.AssertStatus(t, http.StatusCreated)
	var pin models.Pin
	decodeBody(t, rec, &pin)

	rec = f.as(user, http.MethodPost, "/map/collections/select", fmt.Sprintf(`{"id":%q}`, coll.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)
	var sel struct {
		Pins  []models.Pin  `json:"pins"`
		State mapsync.State `json:"state"`
	}
	decodeBody(t, rec, &sel)

	if len(sel.Pins) != 1 || sel.Pins[0].ID != pin.ID {
		t.Fatalf("pins = %+v, want only Blue Bottle", sel.Pins)
	}
	if sel.State.Visible != 1 || sel.State.CollectionID != coll.ID.Hex() {
		t.Errorf("state = visible %d, collection %q", sel.State.Visible, sel.State.CollectionID)
	}
	m := sel.State.Map
	if m == nil || len(m.Markers) != 1 || m.Markers[0].ID != surface.PinMarker(pin.ID.Hex()) {
		t.Fatalf("map = %+v", m)
	}
	if m.Camera.Mode != "center" || m.Camera.Zoom != 15 {
		t.Errorf("camera = %+v, want centered at zoom 15", m.Camera)
	}
}

func TestDeleteCollection_RequiresConfirm(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser("Ada")
	coll := f.mp.SeedCollection(models.Collection{UserID: user.ObjectID(), Title: "Doomed"})
	f.mp.SeedPin(models.Pin{UserID: user.ObjectID(), CollectionID: coll.ID, Title: "p", Lat: 1, Lng: 1})

	target := "/map/collections/" + coll.ID.Hex()
	rec := f.as(user, http.MethodDelete, target, "")
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, `"field":"confirm"`)
	if !f.mp.HasCollection(coll.ID) {
		t.Fatal("collection deleted without confirmation")
	}

	rec = f.as(user, http.MethodDelete, target+"?confirm=true", "")
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"pins_removed":1`)
	if f.mp.HasCollection(coll.ID) || len(f.mp.PinsIn(coll.ID)) != 0 {
		t.Error("collection or its pins survived")
	}
}

func TestSignedOut_EditsRejected(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		method, target, body string
	}{
		{http.MethodPost, "/map/pins", `{"title":"x"}`},
		{http.MethodPost, "/map/collections", `{"title":"x"}`},
		{http.MethodPost, "/map/search/save", `{}`},
		{http.MethodPost, "/map/load", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := f.do(testutil.NewJSONRequest(tt.method, tt.target, tt.body))
			rec.AssertStatus(t, http.StatusUnauthorized)
			rec.AssertContains(t, "login_required")
		})
	}

	rec := f.do(testutil.NewJSONRequest(http.MethodPost, "/map/dblclick?lat=37.7&lng=-122.4", ""))
	rec.AssertStatus(t, http.StatusUnauthorized)
}

func TestDoubleClick(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser("Ada")
	f.places.SetAddress("Embarcadero, San Francisco")

	rec := f.as(user, http.MethodPost, "/map/dblclick?lat=37.7955&lng=-122.3937", "")
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Embarcadero, San Francisco")

	rec = f.as(user, http.MethodPost, "/map/dblclick?lat=north&lng=0", "")
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = f.as(user, http.MethodPost, "/map/dblclick?lat=95&lng=0", "")
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestPlaceLookups_RateLimited(t *testing.T) {
	lookups := ratelimit.New(2, time.Minute)
	t.Cleanup(lookups.Close)
	f := newLimitedFixture(t, lookups)
	user := testutil.NewUser("Ada")

	for i := 0; i < 2; i++ {
		rec := f.as(user, http.MethodPost, "/map/dblclick?lat=37.7955&lng=-122.3937", "")
		rec.AssertStatus(t, http.StatusOK)
	}
	rec := f.as(user, http.MethodPost, "/map/dblclick?lat=37.7955&lng=-122.3937", "")
	rec.AssertStatus(t, http.StatusTooManyRequests)
	rec.AssertContains(t, `"kind":"rate_limited"`)

	// Local-only operations are not counted.
	rec = f.as(user, http.MethodPost, "/map/overlay/close", "")
	rec.AssertStatus(t, http.StatusNoContent)
}

func TestAnonymousSessionCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/map/state", nil))
	rec.AssertStatus(t, http.StatusOK)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != mapview.AnonCookie {
		t.Fatalf("cookies = %+v, want one session cookie", cookies)
	}

	again := httptest.NewRequest(http.MethodGet, "/map/state", nil)
	again.AddCookie(cookies[0])
	rec = f.do(again)
	rec.AssertStatus(t, http.StatusOK)
	if len(rec.Result().Cookies()) != 0 {
		t.Error("a valid cookie was reissued")
	}
	if n := f.reg.Len(); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}

	beat := httptest.NewRequest(http.MethodPost, "/map/heartbeat", nil)
	beat.AddCookie(cookies[0])
	rec = f.do(beat)
	rec.AssertStatus(t, http.StatusNoContent)
	if n := f.reg.Len(); n != 1 {
		t.Errorf("heartbeat opened a new session; sessions = %d", n)
	}

	forged := httptest.NewRequest(http.MethodGet, "/map/state", nil)
	forged.AddCookie(&http.Cookie{Name: mapview.AnonCookie, Value: "someone-else"})
	rec = f.do(forged)
	if len(rec.Result().Cookies()) != 1 {
		t.Error("forged cookie accepted")
	}
	if n := f.reg.Len(); n != 2 {
		t.Errorf("sessions = %d, want 2", n)
	}
}

func TestSearchSelectSave(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser("Ada")

	rec := f.as(user, http.MethodGet, "/map/search?q="+url.QueryEscape("ferry"), "")
	rec.AssertStatus(t, http.StatusOK)
	var res placesearch.Result
	decodeBody(t, rec, &res)
	if len(res.Candidates) != 1 || res.Candidates[0].ID != ferryBuilding.ID {
		t.Fatalf("candidates = %+v", res.Candidates)
	}

	rec = f.as(user, http.MethodPost, "/map/search/"+ferryBuilding.ID+"/select", "")
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, ferryBuilding.Name)

	rec = f.as(user, http.MethodPost, "/map/search/save", `{"new_collection":{"title":"Markets"}}`)
	rec.AssertStatus(t, http.StatusCreated)
	var pin models.Pin
	decodeBody(t, rec, &pin)
	if pin.Title != ferryBuilding.Name || pin.Category != models.CategoryShopping {
		t.Errorf("pin = %+v", pin)
	}
	if len(f.mp.AllPins()) != 1 {
		t.Errorf("stored pins = %d, want 1", len(f.mp.AllPins()))
	}
}

func TestSelectUnknownCandidate(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser("Ada")

	rec := f.as(user, http.MethodPost, "/map/search/nope/select", "")
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestUploads(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser("Ada")
	coll := f.mp.SeedCollection(models.Collection{UserID: user.ObjectID(), Title: "C"})

	rec := f.as(user, http.MethodPost, "/map/uploads", `{"name":"cover.jpg"}`)
	rec.AssertStatus(t, http.StatusCreated)
	var up struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &up)

	rec = f.as(user, http.MethodPost, "/map/uploads/"+up.ID+"/complete", `{"url":"https://img.example/cover.jpg"}`)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"kept":true`)

	body := fmt.Sprintf(`{"collection_id":%q,"title":"With image","lat":1,"lng":1}`, coll.ID.Hex())
	rec = f.as(user, http.MethodPost, "/map/pins", body)
	rec.AssertStatus(t, http.StatusCreated)
	rec.AssertContains(t, "https://img.example/cover.jpg")

	rec = f.as(user, http.MethodDelete, "/map/uploads/"+up.ID, "")
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestPinErrors(t *testing.T) {
	f := newFixture(t)
	owner := testutil.NewUser("Ada")
	other := testutil.NewUser("Bob")
	coll := f.mp.SeedCollection(models.Collection{UserID: owner.ObjectID(), Title: "C"})
	pin := f.mp.SeedPin(models.Pin{UserID: owner.ObjectID(), CollectionID: coll.ID, Title: "p", Lat: 1, Lng: 1})

	rec := f.as(owner, http.MethodPost, "/map/pins", fmt.Sprintf(`{"collection_id":%q,"title":"  ","lat":1,"lng":1}`, coll.ID.Hex()))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, `"field":"title"`)

	rec = f.as(other, http.MethodDelete, "/map/pins/"+pin.ID.Hex(), "")
	rec.AssertStatus(t, http.StatusNotFound)

	rec = f.as(owner, http.MethodPatch, "/map/pins/"+pin.ID.Hex(), `{"title":"renamed"}`)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "renamed")

	rec = f.as(owner, http.MethodPatch, "/map/pins/not-an-id", `{"title":"x"}`)
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestRegistry_EvictIdle(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	built := 0
	reg := mapview.NewRegistry(func() *mapsync.Controller {
		built++
		return mapsync.New(mapsync.Deps{Places: testutil.NewStubPlaces(), Log: zap.NewNop()}, mapsync.Config{})
	}, zap.NewNop())
	reg.SetClock(func() time.Time { return now })

	ctx := context.Background()
	idle, err := reg.Get(ctx, "anon:a", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	reg.Get(ctx, "anon:b", nil)

	now = now.Add(20 * time.Minute)
	reg.Get(ctx, "anon:b", nil)
	if built != 2 {
		t.Fatalf("existing session rebuilt (built %d)", built)
	}
	now = now.Add(15 * time.Minute)

	if n := reg.EvictIdle(30 * time.Minute); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
	if reg.Len() != 1 {
		t.Errorf("sessions = %d, want 1", reg.Len())
	}
	if _, err := idle.SwitchTab(ctx, viewfilter.TabMine); !errors.Is(err, mapsync.ErrClosed) {
		t.Errorf("evicted controller err = %v, want ErrClosed", err)
	}
	reg.Get(ctx, "anon:a", nil)
	if built != 3 {
		t.Errorf("evicted session not rebuilt (built %d)", built)
	}
}

func TestRegistry_FailedInitLeavesNoSession(t *testing.T) {
	reg := mapview.NewRegistry(func() *mapsync.Controller {
		return mapsync.New(mapsync.Deps{Places: testutil.NewStubPlaces(), Log: zap.NewNop()}, mapsync.Config{})
	}, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("platform down")
	var failed *mapsync.Controller
	_, err := reg.Get(ctx, "user:a", func(c *mapsync.Controller) error {
		failed = c
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if reg.Len() != 0 {
		t.Errorf("sessions = %d, want 0", reg.Len())
	}
	if _, err := failed.SwitchTab(ctx, viewfilter.TabMine); !errors.Is(err, mapsync.ErrClosed) {
		t.Errorf("failed controller err = %v, want ErrClosed", err)
	}

	ctrl, err := reg.Get(ctx, "user:a", func(*mapsync.Controller) error { return nil })
	if err != nil || ctrl == failed {
		t.Errorf("retry = %v, %v; want a fresh controller", ctrl, err)
	}
}

func TestSignedIn_ConcurrentFirstRequestsWaitForLoad(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser("Ada")
	coll := f.mp.SeedCollection(models.Collection{UserID: user.ObjectID(), Title: "Coffee"})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.mp.OnCall(testutil.OpListPins, func(...any) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	stateDone := make(chan *testutil.ResponseRecorder, 1)
	go func() { stateDone <- f.as(user, http.MethodGet, "/map/state", "") }()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first request never started loading")
	}

	body := fmt.Sprintf(`{"collection_id":%q,"title":"Blue Bottle","lat":37.78,"lng":-122.40}`, coll.ID.Hex())
	pinDone := make(chan *testutil.ResponseRecorder, 1)
	go func() { pinDone <- f.as(user, http.MethodPost, "/map/pins", body) }()

	time.Sleep(20 * time.Millisecond)
	close(release)

	(<-stateDone).AssertStatus(t, http.StatusOK)
	(<-pinDone).AssertStatus(t, http.StatusCreated)
	if n := f.mp.Calls(testutil.OpListPins); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
	if n := f.reg.Len(); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
}
