// Package mapsync wires the map annotation engine together. A Controller
// owns one user's view: the annotation store, feed loader, search session,
// marker reconciler, viewport fitter and search selection flow, plus the
// surface they draw on.
package mapsync

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/pinmap/internal/app/mapsync/annotations"
	"github.com/dalemusser/pinmap/internal/app/mapsync/feeds"
	"github.com/dalemusser/pinmap/internal/app/mapsync/markers"
	"github.com/dalemusser/pinmap/internal/app/mapsync/placesearch"
	"github.com/dalemusser/pinmap/internal/app/mapsync/searchflow"
	"github.com/dalemusser/pinmap/internal/app/mapsync/surface"
	"github.com/dalemusser/pinmap/internal/app/mapsync/uploads"
	"github.com/dalemusser/pinmap/internal/app/mapsync/viewfilter"
	"github.com/dalemusser/pinmap/internal/app/mapsync/viewport"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("mapsync: controller closed")

// Deps are the collaborators of a Controller.
type Deps struct {
	Backend  annotations.Backend
	Source   feeds.Source
	Places   placesearch.Provider
	Geocoder placesearch.Geocoder // optional
	Surface  surface.Surface      // defaults to a new surface.Recorder
	Log      *zap.Logger
}

// Config tunes a Controller. Zero values take the package defaults.
type Config struct {
	DetailZoom   int
	SidebarWidth int
	Search       placesearch.Options
}

// Controller serializes every event for one map view under a single lock.
// Network calls run with the lock released; their results re-enter through
// the lock and are checked against the current selection before they are
// applied.
type Controller struct {
	log     *zap.Logger
	surf    surface.Surface
	store   *annotations.Store
	feeds   *feeds.Loader
	search  *placesearch.Client
	rec     *markers.Reconciler
	fit     viewport.Fitter
	flow    *searchflow.Flow
	uploads *uploads.List

	mu          sync.Mutex
	user        primitive.ObjectID // zero when signed out
	sel         viewfilter.Selection
	remoteColls []models.Collection
	sidebarErr  string
	closed      bool
}

// New builds a signed-out controller on the mine tab.
func New(d Deps, cfg Config) *Controller {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	surf := d.Surface
	if surf == nil {
		surf = surface.NewRecorder()
	}

	var labeler markers.Labeler
	if d.Geocoder != nil {
		labeler = placesearch.NewLabeler(d.Geocoder, log)
	}

	c := &Controller{
		log:     log,
		surf:    surf,
		store:   annotations.New(d.Backend, primitive.NilObjectID, log),
		feeds:   feeds.NewLoader(d.Source, primitive.NilObjectID, log),
		search:  placesearch.NewClient(d.Places, log, cfg.Search),
		rec:     markers.New(surf, labeler, log),
		fit:     viewport.Fitter{DetailZoom: cfg.DetailZoom, SidebarWidth: cfg.SidebarWidth},
		uploads: &uploads.List{},
		sel:     viewfilter.Selection{Tab: viewfilter.TabMine},
	}
	c.flow = searchflow.New(c.search, c.store, surf, c.fit, log)
	return c
}

// lock acquires c.mu and fails once the controller is closed.
func (c *Controller) lock() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (c *Controller) requireUser() error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.user.IsZero() {
		return apperr.ErrLoginRequired
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* rendering                                                                  */
/* -------------------------------------------------------------------------- */

// render recomputes the visible pins and reconciles markers; must be called
// with c.mu held.
func (c *Controller) render(fit bool) []models.Pin {
	snap := c.store.Snapshot()
	visible := viewfilter.ComputeVisible(snap.Pins, c.sel)

	colorFor := snap.ColorFor
	if c.sel.Tab.Remote() {
		color := models.DefaultColor
		if c.sel.CollectionID != nil {
			for _, rc := range c.remoteColls {
				if rc.ID == *c.sel.CollectionID {
					color = rc.DisplayColor()
				}
			}
		}
		colorFor = func(primitive.ObjectID) string { return color }
	}

	c.rec.Reconcile(visible, colorFor)
	if fit {
		c.fit.Fit(c.surf, visible)
	}
	return visible
}

/* -------------------------------------------------------------------------- */
/* session and selection                                                      */
/* -------------------------------------------------------------------------- */

// Load signs userID in and loads their pins and collections. The camera is
// fitted to the result.
func (c *Controller) Load(ctx context.Context, userID primitive.ObjectID) error {
	if userID.IsZero() {
		return apperr.ErrLoginRequired
	}
	if err := c.lock(); err != nil {
		return err
	}
	if userID != c.user {
		c.user = userID
		c.rec.SetViewer(userID)
		c.feeds.SetViewer(userID)
		c.uploads.Reset()
		c.flow.Reset()
		c.sel = viewfilter.Selection{Tab: viewfilter.TabMine}
	}
	c.mu.Unlock()

	err := c.store.Load(ctx, userID)

	if lerr := c.lock(); lerr != nil {
		return lerr
	}
	defer c.mu.Unlock()
	if c.user != userID {
		return err
	}
	c.render(true)
	return err
}

// SignOut drops the user's data from the view.
func (c *Controller) SignOut() {
	if c.lock() != nil {
		return
	}
	defer c.mu.Unlock()
	c.user = primitive.NilObjectID
	c.rec.SetViewer(primitive.NilObjectID)
	c.feeds.SetViewer(primitive.NilObjectID)
	c.store.Reset()
	c.flow.Reset()
	c.uploads.Reset()
	c.sel = viewfilter.Selection{Tab: viewfilter.TabMine}
	c.remoteColls = nil
	c.rec.Clear()
}

// SwitchTab activates a tab with no collection selected. The remote tabs
// load their sidebar collection list; the friends tab needs a session.
func (c *Controller) SwitchTab(ctx context.Context, tab viewfilter.Tab) ([]models.Collection, error) {
	if _, err := viewfilter.ParseTab(string(tab)); err != nil {
		return nil, err
	}
	if err := c.lock(); err != nil {
		return nil, err
	}
	user := c.user
	if tab == viewfilter.TabFriends && user.IsZero() {
		c.mu.Unlock()
		return nil, apperr.ErrLoginRequired
	}
	c.sel = viewfilter.Selection{Tab: tab}
	c.feeds.Cancel()
	c.rec.CloseOverlay()
	c.remoteColls = nil
	c.sidebarErr = ""
	c.render(tab == viewfilter.TabMine)
	c.mu.Unlock()

	if !tab.Remote() {
		return c.store.Snapshot().Collections, nil
	}

	var colls []models.Collection
	var err error
	if tab == viewfilter.TabFriends {
		colls, err = c.feeds.ListFriendCollections(ctx, user)
	} else {
		colls, err = c.feeds.ListDiscoverCollections(ctx, user)
	}

	if lerr := c.lock(); lerr != nil {
		return nil, lerr
	}
	defer c.mu.Unlock()
	if c.sel.Tab != tab || c.user != user {
		return colls, feeds.ErrStale
	}
	c.remoteColls = colls
	if err != nil {
		c.sidebarErr = "Couldn't load collections."
	}
	return colls, err
}

// SelectCollection narrows the view to one collection, or to all of the
// tab's pins when id is nil. On a remote tab it loads the collection's
// feed; the previous feed is cleared at once and a response to an older
// selection is dropped.
func (c *Controller) SelectCollection(ctx context.Context, id *primitive.ObjectID) ([]models.Pin, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	c.rec.CloseOverlay()

	if !c.sel.Tab.Remote() {
		defer c.mu.Unlock()
		if id != nil {
			if _, ok := c.store.Snapshot().Collection(*id); !ok {
				return nil, apperr.ErrNotFound
			}
			sel := *id
			id = &sel
		}
		c.sel.CollectionID = id
		return c.render(true), nil
	}

	tab := c.sel.Tab
	c.sel.Feed = nil
	c.sel.CollectionID = nil
	if id == nil {
		c.feeds.Cancel()
		c.render(false)
		c.mu.Unlock()
		return []models.Pin{}, nil
	}
	sel := *id
	c.sel.CollectionID = &sel
	t := c.feeds.Begin(sel)
	c.render(false)
	c.mu.Unlock()

	resp := c.feeds.Fetch(ctx, t)

	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	if c.sel.Tab != tab || c.sel.CollectionID == nil || *c.sel.CollectionID != sel || !c.feeds.Apply(resp) {
		return []models.Pin{}, feeds.ErrStale
	}
	c.sel.Feed = resp.Pins
	visible := c.render(true)
	return visible, resp.Err
}

// MoveCamera records the camera center to bias later searches.
func (c *Controller) MoveCamera(lat, lng float64) {
	c.search.SetBias(lat, lng)
}

/* -------------------------------------------------------------------------- */
/* markers                                                                    */
/* -------------------------------------------------------------------------- */

// ClickMarker opens the overlay of a pin, closing any other.
func (c *Controller) ClickMarker(pinID primitive.ObjectID) (surface.Overlay, error) {
	if err := c.lock(); err != nil {
		return surface.Overlay{}, err
	}
	defer c.mu.Unlock()
	return c.rec.Click(pinID)
}

// CloseOverlay closes the open pin overlay.
func (c *Controller) CloseOverlay() {
	if c.lock() != nil {
		return
	}
	defer c.mu.Unlock()
	c.rec.CloseOverlay()
}

// DoubleClick starts pin creation at a point on empty map. Signed-out
// users get apperr.ErrLoginRequired.
func (c *Controller) DoubleClick(ctx context.Context, lat, lng float64) (markers.CreateIntent, error) {
	if err := c.lock(); err != nil {
		return markers.CreateIntent{}, err
	}
	signedIn := !c.user.IsZero()
	c.mu.Unlock()
	return c.rec.DoubleClick(ctx, lat, lng, signedIn)
}

/* -------------------------------------------------------------------------- */
/* search                                                                     */
/* -------------------------------------------------------------------------- */

// Search runs a debounced place search. Only the latest call's candidates
// are shown; superseded calls return placesearch.ErrSuperseded.
func (c *Controller) Search(ctx context.Context, query string) (placesearch.Result, error) {
	res, err := c.search.Search(ctx, query)
	if errors.Is(err, placesearch.ErrSuperseded) || errors.Is(err, placesearch.ErrClosed) {
		return res, err
	}
	if lerr := c.lock(); lerr != nil {
		return res, lerr
	}
	defer c.mu.Unlock()
	if !c.search.IsCurrent(res.Seq) {
		return placesearch.Result{Seq: res.Seq, Query: res.Query}, placesearch.ErrSuperseded
	}
	if res.Candidates != nil {
		c.flow.ShowCandidates(res.Query, res.Candidates)
	}
	return res, err
}

// SelectCandidate resolves a search candidate and drops the transient
// marker.
func (c *Controller) SelectCandidate(ctx context.Context, candidateID string) (models.PlaceDetails, error) {
	if err := c.lock(); err != nil {
		return models.PlaceDetails{}, err
	}
	c.rec.CloseOverlay()
	c.mu.Unlock()
	return c.flow.Select(ctx, candidateID)
}

// SaveCandidate saves the dropped place as a pin. The first finished
// upload becomes its image when the request carries none.
func (c *Controller) SaveCandidate(ctx context.Context, req searchflow.SaveRequest) (models.Pin, error) {
	if err := c.requireUser(); err != nil {
		return models.Pin{}, err
	}
	if req.ImageURL == "" {
		req.ImageURL, _ = c.uploads.First()
	}
	pin, err := c.flow.Save(ctx, req)

	if lerr := c.lock(); lerr != nil {
		return pin, lerr
	}
	defer c.mu.Unlock()
	if !pin.ID.IsZero() {
		c.uploads.Reset()
	}
	c.render(false)
	return pin, err
}

// DiscardCandidate removes the transient search marker.
func (c *Controller) DiscardCandidate() {
	if c.lock() != nil {
		return
	}
	defer c.mu.Unlock()
	c.flow.Discard()
}

/* -------------------------------------------------------------------------- */
/* mutations                                                                  */
/* -------------------------------------------------------------------------- */

// CreatePin creates a pin from the new-pin form.
func (c *Controller) CreatePin(ctx context.Context, in annotations.PinInput) (models.Pin, error) {
	if err := c.requireUser(); err != nil {
		return models.Pin{}, err
	}
	if in.ImageURL == "" {
		in.ImageURL, _ = c.uploads.First()
	}
	pin, err := c.store.CreatePin(ctx, in)

	if lerr := c.lock(); lerr != nil {
		return pin, lerr
	}
	defer c.mu.Unlock()
	if !pin.ID.IsZero() {
		c.uploads.Reset()
		c.render(false)
	}
	return pin, err
}

// UpdatePin edits a pin in place.
func (c *Controller) UpdatePin(ctx context.Context, id primitive.ObjectID, patch models.PinPatch) (models.Pin, error) {
	if err := c.requireUser(); err != nil {
		return models.Pin{}, err
	}
	pin, err := c.store.UpdatePin(ctx, id, patch)
	if err != nil {
		return pin, err
	}
	if err := c.lock(); err != nil {
		return pin, err
	}
	defer c.mu.Unlock()
	c.render(false)
	return pin, nil
}

// DeletePin deletes a pin and releases its overlay. A pin that is already
// gone reports apperr.ErrNotFound and leaves the view consistent.
func (c *Controller) DeletePin(ctx context.Context, id primitive.ObjectID) error {
	if err := c.requireUser(); err != nil {
		return err
	}
	err := c.store.DeletePin(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if lerr := c.lock(); lerr != nil {
		return lerr
	}
	defer c.mu.Unlock()
	if open, ok := c.rec.OpenPin(); ok && open == id {
		c.rec.CloseOverlay()
	}
	c.render(false)
	return err
}

// CreateCollection creates a collection.
func (c *Controller) CreateCollection(ctx context.Context, in annotations.CollectionInput) (models.Collection, error) {
	if err := c.requireUser(); err != nil {
		return models.Collection{}, err
	}
	return c.store.CreateCollection(ctx, in)
}

// UpdateCollection edits a collection; a color change recolors its markers.
func (c *Controller) UpdateCollection(ctx context.Context, id primitive.ObjectID, patch models.CollectionPatch) (models.Collection, error) {
	if err := c.requireUser(); err != nil {
		return models.Collection{}, err
	}
	coll, err := c.store.UpdateCollection(ctx, id, patch)
	if err != nil {
		return coll, err
	}
	if err := c.lock(); err != nil {
		return coll, err
	}
	defer c.mu.Unlock()
	c.render(false)
	return coll, nil
}

// DeleteCollection deletes a collection and its pins. The caller must have
// confirmed with the user. If it was selected the view falls back to all
// pins.
func (c *Controller) DeleteCollection(ctx context.Context, id primitive.ObjectID) (int, error) {
	if err := c.requireUser(); err != nil {
		return 0, err
	}
	n, err := c.store.DeleteCollection(ctx, id)
	if err != nil {
		return n, err
	}
	if err := c.lock(); err != nil {
		return n, err
	}
	defer c.mu.Unlock()
	fit := false
	if c.sel.Tab == viewfilter.TabMine && c.sel.CollectionID != nil && *c.sel.CollectionID == id {
		c.sel.CollectionID = nil
		fit = true
	}
	c.render(fit)
	return n, nil
}

// RefreshStats refreshes collection pin counts and thumbnails in the
// background. Failures keep the current counts.
func (c *Controller) RefreshStats(ctx context.Context) error {
	if err := c.requireUser(); err != nil {
		return err
	}
	return c.store.RefreshStats(ctx)
}

/* -------------------------------------------------------------------------- */
/* uploads                                                                    */
/* -------------------------------------------------------------------------- */

// BeginUpload adds an uploading image to the pin form.
func (c *Controller) BeginUpload(name string) string {
	return c.uploads.Begin(name)
}

// CompleteUpload records a finished upload. It reports false when the
// image was removed while uploading; the result is then discarded.
func (c *Controller) CompleteUpload(id, url string) bool {
	return c.uploads.Complete(id, url)
}

// RemoveUpload removes an image from the pin form.
func (c *Controller) RemoveUpload(id string) bool {
	return c.uploads.Remove(id)
}

/* -------------------------------------------------------------------------- */
/* state                                                                      */
/* -------------------------------------------------------------------------- */

// Stater is implemented by surfaces that can report what they show.
type Stater interface {
	State() surface.State
}

// State is a serializable view of the controller.
type State struct {
	UserID       string               `json:"user_id,omitempty"`
	Tab          viewfilter.Tab       `json:"tab"`
	CollectionID string               `json:"collection_id,omitempty"`
	Collections  []models.Collection  `json:"collections"`
	SidebarError string               `json:"sidebar_error,omitempty"`
	Visible      int                  `json:"visible"`
	Map          *surface.State       `json:"map,omitempty"`
	Search       searchflow.View      `json:"search"`
	Uploads      []uploads.Item       `json:"uploads"`
	Selection    viewfilter.Selection `json:"-"`
}

// State returns a snapshot of the view.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.store.Snapshot()
	st := State{
		Tab:          c.sel.Tab,
		SidebarError: c.sidebarErr,
		Visible:      len(viewfilter.ComputeVisible(snap.Pins, c.sel)),
		Search:       c.flow.View(),
		Uploads:      c.uploads.Items(),
		Selection:    c.sel,
	}
	if !c.user.IsZero() {
		st.UserID = c.user.Hex()
	}
	if c.sel.CollectionID != nil {
		st.CollectionID = c.sel.CollectionID.Hex()
	}
	if c.sel.Tab.Remote() {
		st.Collections = append([]models.Collection{}, c.remoteColls...)
	} else {
		st.Collections = snap.Collections
	}
	if st.Collections == nil {
		st.Collections = []models.Collection{}
	}
	if s, ok := c.surf.(Stater); ok {
		ms := s.State()
		st.Map = &ms
	}
	return st
}

// Snapshot returns the user's pins and collections.
func (c *Controller) Snapshot() annotations.Snapshot {
	return c.store.Snapshot()
}

// Close stops the search debounce timer and releases the view. Later
// operations return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.search.Close()
	c.flow.Reset()
	c.rec.Clear()
}
