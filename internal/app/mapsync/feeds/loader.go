// Package feeds loads read-only pin lists for collections the viewer does
// not own, and the collection lists of the friends and discover tabs.
package feeds

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrStale is returned for a response whose request was superseded by a
// newer selection.
var ErrStale = errors.New("feeds: response superseded")

// Source is the read side of the data platform used by the feeds.
type Source interface {
	GetCollection(ctx context.Context, id primitive.ObjectID) (models.Collection, error)
	// ListCollectionPins returns the pins of one collection, newest first.
	ListCollectionPins(ctx context.Context, collectionID primitive.ObjectID) ([]models.Pin, error)
	// ListFriendCollections returns public collections of userID's
	// accepted friends.
	ListFriendCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error)
	// ListDiscoverCollections returns public collections of users who are
	// neither userID nor a friend.
	ListDiscoverCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error)
}

// Ticket identifies one feed request.
type Ticket struct {
	N            uint64
	CollectionID primitive.ObjectID
}

// Response is the outcome of Fetch. Pins is empty whenever Err is set.
type Response struct {
	Ticket Ticket
	Pins   []models.Pin
	Err    error
}

// Loader fetches collection feeds for one viewer. Only the response to the
// most recent request can be applied.
type Loader struct {
	src Source
	log *zap.Logger

	mu      sync.Mutex
	viewer  primitive.ObjectID
	n       uint64
	current Ticket
	feed    []models.Pin
}

// NewLoader returns a loader for viewer.
func NewLoader(src Source, viewer primitive.ObjectID, log *zap.Logger) *Loader {
	return &Loader{src: src, viewer: viewer, log: log}
}

// SetViewer changes the viewer and drops any current feed.
func (l *Loader) SetViewer(viewer primitive.ObjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if viewer != l.viewer {
		l.viewer = viewer
		l.invalidate()
	}
}

// must be called with l.mu held.
func (l *Loader) invalidate() {
	l.n++
	l.current = Ticket{N: l.n}
	l.feed = nil
}

// Begin records collectionID as the requested feed and returns its ticket.
// Every earlier ticket becomes stale and the current feed is cleared, so a
// previous collection's pins are never shown for the new one.
func (l *Loader) Begin(collectionID primitive.ObjectID) Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidate()
	l.current.CollectionID = collectionID
	return l.current
}

// Cancel makes every outstanding ticket stale and clears the feed.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidate()
}

// Current reports whether t is the latest request.
func (l *Loader) Current(t Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return t == l.current
}

// Fetch loads the pins for t's collection. Collections owned by the viewer
// are refused with apperr.ErrPermissionDenied since they are served by the
// annotation store, as are private collections of other users.
func (l *Loader) Fetch(ctx context.Context, t Ticket) Response {
	l.mu.Lock()
	viewer := l.viewer
	l.mu.Unlock()

	c, err := l.src.GetCollection(ctx, t.CollectionID)
	if err != nil {
		return l.failed(t, "get collection", err)
	}
	if c.UserID == viewer {
		return Response{Ticket: t, Pins: []models.Pin{}, Err: apperr.ErrPermissionDenied}
	}
	if !c.IsPublic {
		return Response{Ticket: t, Pins: []models.Pin{}, Err: apperr.ErrPermissionDenied}
	}

	pins, err := l.src.ListCollectionPins(ctx, t.CollectionID)
	if err != nil {
		return l.failed(t, "collection pins", err)
	}
	if pins == nil {
		pins = []models.Pin{}
	}
	return Response{Ticket: t, Pins: pins}
}

func (l *Loader) failed(t Ticket, op string, err error) Response {
	l.log.Warn("feed load failed",
		zap.String("collection_id", t.CollectionID.Hex()),
		zap.String("op", op),
		zap.Error(err))
	if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrPermissionDenied) {
		err = apperr.Provider(op, err)
	}
	return Response{Ticket: t, Pins: []models.Pin{}, Err: err}
}

// Apply installs r as the current feed. It reports false and changes
// nothing when r's ticket is no longer current. A failed response installs
// an empty feed.
func (l *Loader) Apply(r Response) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.Ticket != l.current {
		l.log.Debug("dropping stale feed response",
			zap.String("collection_id", r.Ticket.CollectionID.Hex()),
			zap.Uint64("ticket", r.Ticket.N),
			zap.Uint64("current", l.current.N))
		return false
	}
	l.feed = append([]models.Pin(nil), r.Pins...)
	return true
}

// LoadCollectionPins requests, fetches and applies the feed of
// collectionID. It returns ErrStale when another request superseded this
// one before its response arrived.
func (l *Loader) LoadCollectionPins(ctx context.Context, collectionID primitive.ObjectID) ([]models.Pin, error) {
	t := l.Begin(collectionID)
	r := l.Fetch(ctx, t)
	if !l.Apply(r) {
		return []models.Pin{}, ErrStale
	}
	return r.Pins, r.Err
}

// Feed returns the applied feed and the collection it belongs to.
func (l *Loader) Feed() ([]models.Pin, primitive.ObjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Pin(nil), l.feed...), l.current.CollectionID
}

// ListFriendCollections returns the friends tab's collection list. On
// failure it returns an empty list and an error wrapping
// apperr.ErrProvider.
func (l *Loader) ListFriendCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	colls, err := l.src.ListFriendCollections(ctx, userID)
	if err != nil {
		l.log.Warn("friend collections failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		return []models.Collection{}, apperr.Provider("friend collections", err)
	}
	return nonNil(colls), nil
}

// ListDiscoverCollections returns the discover tab's collection list.
func (l *Loader) ListDiscoverCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	colls, err := l.src.ListDiscoverCollections(ctx, userID)
	if err != nil {
		l.log.Warn("discover collections failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		return []models.Collection{}, apperr.Provider("discover collections", err)
	}
	return nonNil(colls), nil
}

func nonNil(c []models.Collection) []models.Collection {
	if c == nil {
		return []models.Collection{}
	}
	return c
}
