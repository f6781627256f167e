// Package searchflow drives the path from a search candidate to a saved
// pin: resolve the place, drop a transient marker, then save it into a
// collection or discard it.
package searchflow

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/pinmap/internal/app/mapsync/annotations"
	"github.com/dalemusser/pinmap/internal/app/mapsync/placesearch"
	"github.com/dalemusser/pinmap/internal/app/mapsync/surface"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// State is a step of the flow.
type State string

const (
	StateIdle              State = "idle"
	StateCandidatesShown   State = "candidates_shown"
	StateDetailsResolving  State = "details_resolving"
	StatePinDropped        State = "pin_dropped"
	StateAddedToCollection State = "added_to_collection"
	StateDiscarded         State = "discarded"
)

// ErrBusy is returned when Save is called while a save is in progress.
var ErrBusy = errors.New("searchflow: save in progress")

// Resolver resolves a candidate to place details.
type Resolver interface {
	Resolve(ctx context.Context, candidateID string) (models.PlaceDetails, error)
}

// Saver persists collections and pins.
type Saver interface {
	CreateCollection(ctx context.Context, in annotations.CollectionInput) (models.Collection, error)
	CreatePin(ctx context.Context, in annotations.PinInput) (models.Pin, error)
}

// Camera moves the map to a point.
type Camera interface {
	Focus(s surface.Surface, lat, lng float64)
}

// SaveRequest picks the target collection: an existing one by id, or a new
// one created first.
type SaveRequest struct {
	CollectionID  primitive.ObjectID           `json:"collection_id,omitempty"`
	NewCollection *annotations.CollectionInput `json:"new_collection,omitempty"`
	Title         string                       `json:"title,omitempty"`
	Description   string                       `json:"description,omitempty"`
	ImageURL      string                       `json:"image_url,omitempty"`
}

// View is the flow's state for rendering.
type View struct {
	State      State                    `json:"state"`
	Query      string                   `json:"query,omitempty"`
	Candidates []models.SearchCandidate `json:"candidates"`
	Place      *models.PlaceDetails     `json:"place,omitempty"`
	Error      string                   `json:"error,omitempty"`
	SavedPinID string                   `json:"saved_pin_id,omitempty"`
}

// Flow is one user's search selection. It is safe for concurrent use;
// provider and backend calls run without the lock held and their results
// are dropped if the flow moved on meanwhile.
type Flow struct {
	resolver Resolver
	saver    Saver
	surf     surface.Surface
	camera   Camera
	log      *zap.Logger

	mu          sync.Mutex
	state       State
	seq         uint64
	query       string
	candidates  []models.SearchCandidate
	place       *models.PlaceDetails
	errMsg      string
	saving      bool
	createdColl primitive.ObjectID // collection created by a failed save
	savedPin    primitive.ObjectID
}

// New returns an idle flow.
func New(resolver Resolver, saver Saver, surf surface.Surface, camera Camera, log *zap.Logger) *Flow {
	return &Flow{
		resolver: resolver,
		saver:    saver,
		surf:     surf,
		camera:   camera,
		log:      log,
		state:    StateIdle,
	}
}

// State returns the current step.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// View returns a copy of the flow for rendering.
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := View{
		State:      f.state,
		Query:      f.query,
		Candidates: append([]models.SearchCandidate{}, f.candidates...),
		Error:      f.errMsg,
	}
	if f.place != nil {
		p := *f.place
		v.Place = &p
	}
	if !f.savedPin.IsZero() {
		v.SavedPinID = f.savedPin.Hex()
	}
	return v
}

// ShowCandidates installs the candidates of a search. An empty list
// returns the flow to idle unless a transient pin is on the map.
func (f *Flow) ShowCandidates(query string, cands []models.SearchCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = query
	f.candidates = append([]models.SearchCandidate{}, cands...)
	f.errMsg = ""
	if f.state == StatePinDropped {
		return
	}
	f.seq++ // abandons an in-flight resolve
	if len(cands) == 0 {
		f.state = StateIdle
		return
	}
	f.state = StateCandidatesShown
}

func (f *Flow) hasCandidate(id string) bool {
	for _, c := range f.candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Select resolves a shown candidate. On failure the flow returns to
// candidates_shown with an inline error and the candidates unchanged. On
// success the camera pans to the place and the transient marker replaces
// any previous one.
func (f *Flow) Select(ctx context.Context, candidateID string) (models.PlaceDetails, error) {
	f.mu.Lock()
	if !f.hasCandidate(candidateID) {
		f.mu.Unlock()
		return models.PlaceDetails{}, apperr.Invalid("candidate", "pick one of the search results")
	}
	f.seq++
	seq := f.seq
	f.state = StateDetailsResolving
	f.errMsg = ""
	f.mu.Unlock()

	place, err := f.resolver.Resolve(ctx, candidateID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq != f.seq {
		return models.PlaceDetails{}, placesearch.ErrSuperseded
	}
	if err != nil {
		f.log.Warn("place resolve failed", zap.String("candidate_id", candidateID), zap.Error(err))
		f.state = StateCandidatesShown
		f.errMsg = "Couldn't load that place. Try again or pick another result."
		if errors.Is(err, apperr.ErrPlaceNotFound) {
			f.errMsg = "That place has no location. Pick another result."
		}
		return models.PlaceDetails{}, err
	}

	f.dropMarker(place)
	f.place = &place
	f.state = StatePinDropped
	f.savedPin = primitive.NilObjectID
	return place, nil
}

// dropMarker must be called with f.mu held.
func (f *Flow) dropMarker(place models.PlaceDetails) {
	f.surf.RemoveMarker(surface.SearchMarker)
	m := surface.Marker{
		ID:       surface.SearchMarker,
		Position: surface.LatLng{Lat: place.Lat, Lng: place.Lng},
		Icon:     surface.Icon{Category: placesearch.InferCategory(place.Types), Color: models.DefaultColor},
		Title:    place.Name,
	}
	if err := f.surf.AddMarker(m); err != nil {
		f.log.Warn("transient marker failed", zap.String("place_id", place.ID), zap.Error(err))
	} else if err := f.surf.OpenOverlay(surface.Overlay{
		Anchor:  surface.SearchMarker,
		Title:   place.Name,
		Fields:  []surface.Field{{Label: "Address", Value: place.Address}},
		Actions: []surface.Action{surface.ActionSave, surface.ActionDiscard},
	}); err != nil {
		f.log.Warn("search overlay failed", zap.String("place_id", place.ID), zap.Error(err))
	}
	if f.camera != nil {
		f.camera.Focus(f.surf, place.Lat, place.Lng)
	}
}

// Save stores the dropped place as a pin. A new collection is created
// first; if that fails nothing else is attempted. If the pin then fails the
// created collection is kept and remembered, so a retry reuses it instead
// of creating another.
func (f *Flow) Save(ctx context.Context, req SaveRequest) (models.Pin, error) {
	f.mu.Lock()
	if f.state != StatePinDropped || f.place == nil {
		f.mu.Unlock()
		return models.Pin{}, apperr.Invalid("place", "select a place first")
	}
	if f.saving {
		f.mu.Unlock()
		return models.Pin{}, ErrBusy
	}
	f.saving = true
	place := *f.place
	collID := f.createdColl
	f.mu.Unlock()

	done := func() {
		f.mu.Lock()
		f.saving = false
		f.mu.Unlock()
	}

	if collID.IsZero() {
		collID = req.CollectionID
		if req.NewCollection != nil {
			c, err := f.saver.CreateCollection(ctx, *req.NewCollection)
			if err != nil {
				done()
				f.setError("Couldn't create the collection.")
				return models.Pin{}, err
			}
			collID = c.ID
			f.mu.Lock()
			f.createdColl = c.ID
			f.mu.Unlock()
		}
	}

	title := req.Title
	if title == "" {
		title = place.Name
	}
	pin, err := f.saver.CreatePin(ctx, annotations.PinInput{
		CollectionID: collID,
		Title:        title,
		Description:  req.Description,
		Category:     placesearch.InferCategory(place.Types),
		Lat:          place.Lat,
		Lng:          place.Lng,
		ImageURL:     req.ImageURL,
		PlaceID:      place.ID,
		Address:      place.Address,
		Rating:       place.Rating,
		ReviewCount:  place.ReviewCount,
		OpenNow:      place.OpenNow,
	})
	var partial *apperr.PartialFailure
	if err != nil && !(errors.As(err, &partial) && !pin.ID.IsZero()) {
		done()
		f.setError("Couldn't save the pin. Try again.")
		return models.Pin{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saving = false
	f.surf.RemoveMarker(surface.SearchMarker)
	f.state = StateAddedToCollection
	f.place = nil
	f.createdColl = primitive.NilObjectID
	f.savedPin = pin.ID
	f.errMsg = ""
	f.seq++
	return pin, err
}

func (f *Flow) setError(msg string) {
	f.mu.Lock()
	f.errMsg = msg
	f.mu.Unlock()
}

// Discard removes the transient marker and abandons the dropped place.
func (f *Flow) Discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surf.RemoveMarker(surface.SearchMarker)
	f.seq++
	f.place = nil
	f.createdColl = primitive.NilObjectID
	f.errMsg = ""
	f.state = StateDiscarded
}

// Reset returns the flow to idle, removing any transient marker.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surf.RemoveMarker(surface.SearchMarker)
	f.seq++
	f.query = ""
	f.candidates = nil
	f.place = nil
	f.createdColl = primitive.NilObjectID
	f.savedPin = primitive.NilObjectID
	f.errMsg = ""
	f.state = StateIdle
}
