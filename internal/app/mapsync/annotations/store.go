// Package annotations holds the authoritative in-memory copy of a user's
// pins and collections and applies mutations to it after the data platform
// confirms them.
package annotations

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is one user's pins and collections. It is safe for concurrent use;
// backend calls run without the lock held.
//
// Loads and stats refreshes race with mutations. Every applied mutation
// bumps gen; while a load or refresh is in flight the store remembers which
// entities were mutated at which generation, and a result fetched before
// that generation never overwrites them.
type Store struct {
	backend Backend
	log     *zap.Logger

	mu          sync.Mutex
	userID      primitive.ObjectID
	loaded      bool
	pins        []models.Pin // newest first
	collections []models.Collection

	gen          uint64
	inflight     int
	touchedPins  map[primitive.ObjectID]uint64
	deletedPins  map[primitive.ObjectID]uint64
	touchedColls map[primitive.ObjectID]uint64
	deletedColls map[primitive.ObjectID]uint64
	statsTouched map[primitive.ObjectID]uint64

	// removedColls outlives load tracking: a pin confirmed after its
	// collection was deleted must not reappear.
	removedColls map[primitive.ObjectID]struct{}
}

// New returns an empty store for userID.
func New(backend Backend, userID primitive.ObjectID, log *zap.Logger) *Store {
	s := &Store{
		backend:      backend,
		log:          log,
		userID:       userID,
		removedColls: make(map[primitive.ObjectID]struct{}),
	}
	s.resetTracking()
	return s
}

func (s *Store) resetTracking() {
	s.touchedPins = make(map[primitive.ObjectID]uint64)
	s.deletedPins = make(map[primitive.ObjectID]uint64)
	s.touchedColls = make(map[primitive.ObjectID]uint64)
	s.deletedColls = make(map[primitive.ObjectID]uint64)
	s.statsTouched = make(map[primitive.ObjectID]uint64)
}

// UserID returns the user whose data the store holds.
func (s *Store) UserID() primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Loaded reports whether a Load has completed.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Reset drops all local state and detaches the store from its user.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = primitive.NilObjectID
	s.pins, s.collections, s.loaded = nil, nil, false
	s.removedColls = make(map[primitive.ObjectID]struct{})
	s.mutated()
}

/* -------------------------------------------------------------------------- */
/* generation tracking                                                        */
/* -------------------------------------------------------------------------- */

// begin marks a load/refresh as started and returns its generation.
func (s *Store) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	return s.gen
}

// end must be called with s.mu held.
func (s *Store) end() {
	s.inflight--
	if s.inflight == 0 {
		s.resetTracking()
	}
}

// mutated bumps the generation; must be called with s.mu held.
func (s *Store) mutated() uint64 {
	s.gen++
	return s.gen
}

func (s *Store) track(m map[primitive.ObjectID]uint64, id primitive.ObjectID, g uint64) {
	if s.inflight > 0 {
		m[id] = g
	}
}

/* -------------------------------------------------------------------------- */
/* Load                                                                       */
/* -------------------------------------------------------------------------- */

// Load replaces pins and collections with the backend's. Entities mutated
// while the load was in flight keep their local value, and entities deleted
// meanwhile stay deleted. Loading a different user discards all local state.
// On error the previous state is kept.
func (s *Store) Load(ctx context.Context, userID primitive.ObjectID) error {
	s.mu.Lock()
	if userID != s.userID {
		s.userID = userID
		s.pins, s.collections, s.loaded = nil, nil, false
		s.removedColls = make(map[primitive.ObjectID]struct{})
		s.mutated()
	}
	s.mu.Unlock()

	start := s.begin()

	pins, perr := s.backend.ListPins(ctx, userID)
	var colls []models.Collection
	var cerr error
	if perr == nil {
		colls, cerr = s.backend.ListCollections(ctx, userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.end()

	if err := errors.Join(perr, cerr); err != nil {
		s.log.Warn("annotation load failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		return err
	}
	if userID != s.userID {
		// Another user was loaded meanwhile.
		return nil
	}

	s.pins = mergePins(pins, s.pins, start, s.touchedPins, s.deletedPins)
	if len(s.removedColls) > 0 {
		kept := s.pins[:0]
		for _, p := range s.pins {
			if _, gone := s.removedColls[p.CollectionID]; !gone {
				kept = append(kept, p)
			}
		}
		s.pins = kept
	}
	s.collections = mergeCollections(colls, s.collections, start, s.touchedColls, s.deletedColls)
	s.loaded = true

	s.log.Debug("annotations loaded",
		zap.String("user_id", userID.Hex()),
		zap.Int("pins", len(s.pins)),
		zap.Int("collections", len(s.collections)))
	return nil
}

// mergePins takes fetched as the base. Pins mutated after start keep their
// local value; pins created locally after start and absent from fetched are
// kept at the front.
func mergePins(fetched, local []models.Pin, start uint64, touched, deleted map[primitive.ObjectID]uint64) []models.Pin {
	localByID := make(map[primitive.ObjectID]models.Pin, len(local))
	for _, p := range local {
		localByID[p.ID] = p
	}
	inFetched := make(map[primitive.ObjectID]bool, len(fetched))

	out := make([]models.Pin, 0, len(fetched)+len(touched))
	for _, p := range fetched {
		inFetched[p.ID] = true
		if g, ok := deleted[p.ID]; ok && g > start {
			continue
		}
		if g, ok := touched[p.ID]; ok && g > start {
			if lp, ok := localByID[p.ID]; ok {
				p = lp
			}
		}
		out = append(out, p)
	}

	var fresh []models.Pin
	for _, p := range local {
		if g, ok := touched[p.ID]; ok && g > start && !inFetched[p.ID] {
			fresh = append(fresh, p)
		}
	}
	return append(fresh, out...)
}

func mergeCollections(fetched, local []models.Collection, start uint64, touched, deleted map[primitive.ObjectID]uint64) []models.Collection {
	localByID := make(map[primitive.ObjectID]models.Collection, len(local))
	for _, c := range local {
		localByID[c.ID] = c
	}
	inFetched := make(map[primitive.ObjectID]bool, len(fetched))

	out := make([]models.Collection, 0, len(fetched)+len(touched))
	for _, c := range fetched {
		inFetched[c.ID] = true
		if g, ok := deleted[c.ID]; ok && g > start {
			continue
		}
		if g, ok := touched[c.ID]; ok && g > start {
			if lc, ok := localByID[c.ID]; ok {
				c = lc
			}
		}
		out = append(out, c)
	}

	var fresh []models.Collection
	for _, c := range local {
		if g, ok := touched[c.ID]; ok && g > start && !inFetched[c.ID] {
			fresh = append(fresh, c)
		}
	}
	return append(fresh, out...)
}

/* -------------------------------------------------------------------------- */
/* RefreshStats                                                               */
/* -------------------------------------------------------------------------- */

// RefreshStats fetches the collection list with stats and copies only
// PinCount and FirstPinImage into local collections. Stats of collections
// whose pins changed locally since the refresh began are kept, and no
// other field is ever taken from the refresh.
func (s *Store) RefreshStats(ctx context.Context) error {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	start := s.begin()
	fetched, err := s.backend.ListCollections(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.end()

	if err != nil {
		s.log.Warn("collection stats refresh failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		return err
	}
	if userID != s.userID {
		return nil
	}

	byID := make(map[primitive.ObjectID]models.Collection, len(fetched))
	for _, c := range fetched {
		byID[c.ID] = c
	}
	for i := range s.collections {
		c := &s.collections[i]
		if g, ok := s.statsTouched[c.ID]; ok && g > start {
			continue
		}
		if f, ok := byID[c.ID]; ok {
			c.PinCount = f.PinCount
			c.FirstPinImage = f.FirstPinImage
		}
	}
	return nil
}

// recount recomputes PinCount and FirstPinImage of the given collections
// from local pins; must be called with s.mu held.
func (s *Store) recount(g uint64, ids ...primitive.ObjectID) {
	for _, id := range ids {
		idx := s.collectionIndex(id)
		if idx < 0 {
			continue
		}
		count := 0
		var oldest *models.Pin
		for i := range s.pins {
			p := &s.pins[i]
			if p.CollectionID != id {
				continue
			}
			count++
			if p.ImageURL != "" && (oldest == nil || olderThan(p, oldest)) {
				oldest = p
			}
		}
		s.collections[idx].PinCount = count
		s.collections[idx].FirstPinImage = ""
		if oldest != nil {
			s.collections[idx].FirstPinImage = oldest.ImageURL
		}
		s.track(s.statsTouched, id, g)
	}
}

func olderThan(a, b *models.Pin) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.Hex() < b.ID.Hex()
}

/* -------------------------------------------------------------------------- */
/* Pins                                                                       */
/* -------------------------------------------------------------------------- */

// CreatePin validates in, creates the pin on the backend and prepends the
// confirmed pin. Nothing is inserted before the backend assigns an ID. A
// partial failure still inserts the pin and returns it with the error.
func (s *Store) CreatePin(ctx context.Context, in PinInput) (models.Pin, error) {
	userID := s.UserID()
	p, err := in.toPin(userID)
	if err != nil {
		return models.Pin{}, err
	}

	created, err := s.backend.CreatePin(ctx, p)
	var partial *apperr.PartialFailure
	if err != nil && !(errors.As(err, &partial) && !created.ID.IsZero()) {
		s.log.Error("create pin failed",
			zap.String("collection_id", in.CollectionID.Hex()),
			zap.Error(err))
		return models.Pin{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != userID {
		return created, err
	}
	if _, gone := s.removedColls[created.CollectionID]; gone {
		return created, err
	}
	g := s.mutated()
	// A load that ran after the backend confirmed may already hold the pin.
	if i := s.pinIndex(created.ID); i >= 0 {
		prev := s.pins[i].CollectionID
		s.pins[i] = created
		s.track(s.touchedPins, created.ID, g)
		s.recount(g, prev, created.CollectionID)
		return created, err
	}
	s.pins = append([]models.Pin{created}, s.pins...)
	s.track(s.touchedPins, created.ID, g)
	s.recount(g, created.CollectionID)
	return created, err
}

// UpdatePin applies patch and replaces the pin in place, preserving its list
// position. Returns apperr.ErrNotOwner when the pin belongs to someone else.
func (s *Store) UpdatePin(ctx context.Context, id primitive.ObjectID, patch models.PinPatch) (models.Pin, error) {
	patch, err := cleanPinPatch(patch)
	if err != nil {
		return models.Pin{}, err
	}

	s.mu.Lock()
	userID := s.userID
	if i := s.pinIndex(id); i >= 0 {
		if s.pins[i].UserID != userID {
			s.mu.Unlock()
			return models.Pin{}, apperr.ErrNotOwner
		}
		if patch.IsEmpty() {
			p := s.pins[i]
			s.mu.Unlock()
			return p, nil
		}
	}
	s.mu.Unlock()

	updated, err := s.backend.UpdatePin(ctx, userID, id, patch)
	if err != nil {
		s.log.Error("update pin failed", zap.String("pin_id", id.Hex()), zap.Error(err))
		return models.Pin{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.pinIndex(id)
	if i < 0 || s.userID != userID {
		return updated, nil
	}
	g := s.mutated()
	prev := s.pins[i].CollectionID
	s.pins[i] = updated
	s.track(s.touchedPins, id, g)
	s.recount(g, prev, updated.CollectionID)
	return updated, nil
}

// DeletePin removes a pin. Returns apperr.ErrNotFound when it is already
// gone, in which case local state is consistent with the backend.
func (s *Store) DeletePin(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	userID := s.userID
	i := s.pinIndex(id)
	if i < 0 && s.loaded {
		s.mu.Unlock()
		return apperr.ErrNotFound
	}
	if i >= 0 && s.pins[i].UserID != userID {
		s.mu.Unlock()
		return apperr.ErrNotOwner
	}
	s.mu.Unlock()

	err := s.backend.DeletePin(ctx, userID, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.log.Error("delete pin failed", zap.String("pin_id", id.Hex()), zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == userID {
		s.removePin(id)
	}
	return err
}

// removePin must be called with s.mu held.
func (s *Store) removePin(id primitive.ObjectID) {
	i := s.pinIndex(id)
	g := s.mutated()
	s.track(s.deletedPins, id, g)
	if i < 0 {
		return
	}
	coll := s.pins[i].CollectionID
	s.pins = append(s.pins[:i], s.pins[i+1:]...)
	s.recount(g, coll)
}

/* -------------------------------------------------------------------------- */
/* Collections                                                                */
/* -------------------------------------------------------------------------- */

// CreateCollection creates a collection and prepends it.
func (s *Store) CreateCollection(ctx context.Context, in CollectionInput) (models.Collection, error) {
	userID := s.UserID()
	c, err := in.toCollection(userID)
	if err != nil {
		return models.Collection{}, err
	}

	created, err := s.backend.CreateCollection(ctx, c)
	if err != nil {
		s.log.Error("create collection failed", zap.String("title", c.Title), zap.Error(err))
		return models.Collection{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != userID {
		return created, nil
	}
	g := s.mutated()
	if i := s.collectionIndex(created.ID); i >= 0 {
		created.PinCount = s.collections[i].PinCount
		created.FirstPinImage = s.collections[i].FirstPinImage
		s.collections[i] = created
	} else {
		s.collections = append([]models.Collection{created}, s.collections...)
	}
	s.track(s.touchedColls, created.ID, g)
	return created, nil
}

// UpdateCollection applies patch in place. Aggregates stay as they are
// locally.
func (s *Store) UpdateCollection(ctx context.Context, id primitive.ObjectID, patch models.CollectionPatch) (models.Collection, error) {
	patch, err := cleanCollectionPatch(patch)
	if err != nil {
		return models.Collection{}, err
	}

	s.mu.Lock()
	userID := s.userID
	if i := s.collectionIndex(id); i >= 0 && s.collections[i].UserID != userID {
		s.mu.Unlock()
		return models.Collection{}, apperr.ErrNotOwner
	}
	s.mu.Unlock()

	updated, err := s.backend.UpdateCollection(ctx, userID, id, patch)
	if err != nil {
		s.log.Error("update collection failed", zap.String("collection_id", id.Hex()), zap.Error(err))
		return models.Collection{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.collectionIndex(id)
	if i < 0 || s.userID != userID {
		return updated, nil
	}
	g := s.mutated()
	updated.PinCount = s.collections[i].PinCount
	updated.FirstPinImage = s.collections[i].FirstPinImage
	s.collections[i] = updated
	s.track(s.touchedColls, id, g)
	return updated, nil
}

// DeleteCollection deletes a collection and every pin in it. Callers must
// have obtained the user's confirmation; the store never prompts. Returns
// the number of pins removed locally.
func (s *Store) DeleteCollection(ctx context.Context, id primitive.ObjectID) (int, error) {
	s.mu.Lock()
	userID := s.userID
	i := s.collectionIndex(id)
	if i < 0 && s.loaded {
		s.mu.Unlock()
		return 0, apperr.ErrNotFound
	}
	if i >= 0 && s.collections[i].UserID != userID {
		s.mu.Unlock()
		return 0, apperr.ErrNotOwner
	}
	s.mu.Unlock()

	if _, err := s.backend.DeleteCollection(ctx, userID, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.log.Error("delete collection failed", zap.String("collection_id", id.Hex()), zap.Error(err))
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != userID {
		return 0, nil
	}
	g := s.mutated()
	removed := 0
	kept := s.pins[:0]
	for _, p := range s.pins {
		if p.CollectionID == id {
			s.track(s.deletedPins, p.ID, g)
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.pins = kept
	if i := s.collectionIndex(id); i >= 0 {
		s.collections = append(s.collections[:i], s.collections[i+1:]...)
	}
	s.track(s.deletedColls, id, g)
	s.removedColls[id] = struct{}{}
	return removed, nil
}

/* -------------------------------------------------------------------------- */
/* reads                                                                      */
/* -------------------------------------------------------------------------- */

// Snapshot returns a consistent copy of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		UserID:      s.userID,
		Pins:        append([]models.Pin(nil), s.pins...),
		Collections: append([]models.Collection(nil), s.collections...),
		Colors:      make(map[primitive.ObjectID]string, len(s.collections)),
	}
	for _, c := range s.collections {
		snap.Colors[c.ID] = c.DisplayColor()
	}
	return snap
}

// Owns reports whether pin id is held locally and owned by the store's user.
func (s *Store) Owns(id primitive.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.pinIndex(id)
	return i >= 0 && s.pins[i].UserID == s.userID
}

func (s *Store) pinIndex(id primitive.ObjectID) int {
	for i := range s.pins {
		if s.pins[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) collectionIndex(id primitive.ObjectID) int {
	for i := range s.collections {
		if s.collections[i].ID == id {
			return i
		}
	}
	return -1
}
