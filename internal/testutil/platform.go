// internal/testutil/platform.go
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Platform operation names accepted by FailNext and OnCall.
const (
	OpListPins                = "ListPins"
	OpListCollections         = "ListCollections"
	OpCreatePin               = "CreatePin"
	OpUpdatePin               = "UpdatePin"
	OpDeletePin               = "DeletePin"
	OpCreateCollection        = "CreateCollection"
	OpUpdateCollection        = "UpdateCollection"
	OpDeleteCollection        = "DeleteCollection"
	OpGetCollection           = "GetCollection"
	OpListCollectionPins      = "ListCollectionPins"
	OpListFriendCollections   = "ListFriendCollections"
	OpListDiscoverCollections = "ListDiscoverCollections"
)

// MemPlatform is an in-memory data platform. It satisfies the annotation
// backend and the feed source, enforces ownership like the Mongo-backed
// platform, and lets tests inject failures and block calls.
type MemPlatform struct {
	mu      sync.Mutex
	pins    map[primitive.ObjectID]models.Pin
	colls   map[primitive.ObjectID]models.Collection
	friends map[primitive.ObjectID][]primitive.ObjectID
	now     time.Time
	fail    map[string][]error
	hooks   map[string]func(args ...any)
	calls   map[string]int
}

// NewMemPlatform returns an empty platform.
func NewMemPlatform() *MemPlatform {
	return &MemPlatform{
		pins:    make(map[primitive.ObjectID]models.Pin),
		colls:   make(map[primitive.ObjectID]models.Collection),
		friends: make(map[primitive.ObjectID][]primitive.ObjectID),
		now:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		fail:    make(map[string][]error),
		hooks:   make(map[string]func(args ...any)),
		calls:   make(map[string]int),
	}
}

// FailNext makes the next call of op return err. Calls queue up.
func (m *MemPlatform) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = append(m.fail[op], err)
}

// OnCall runs fn at the start of every call of op, before any state is
// read, without the platform lock held. Tests use it to block a call.
func (m *MemPlatform) OnCall(op string, fn func(args ...any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[op] = fn
}

// Calls reports how many times op has been called.
func (m *MemPlatform) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemPlatform) enter(op string, args ...any) error {
	m.mu.Lock()
	m.calls[op]++
	hook := m.hooks[op]
	m.mu.Unlock()

	if hook != nil {
		hook(args...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q := m.fail[op]; len(q) > 0 {
		m.fail[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *MemPlatform) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

/* -------------------------------------------------------------------------- */
/* seeding                                                                    */
/* -------------------------------------------------------------------------- */

// SeedCollection stores a collection as-is (ID assigned when zero).
func (m *MemPlatform) SeedCollection(c models.Collection) models.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.tick()
	}
	c.TitleCI = text.Fold(c.Title)
	m.colls[c.ID] = c
	return c
}

// SeedPin stores a pin as-is (ID and CreatedAt assigned when zero).
func (m *MemPlatform) SeedPin(p models.Pin) models.Pin {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.tick()
	}
	if p.Category == "" {
		p.Category = models.CategoryOther
	}
	m.pins[p.ID] = p
	return p
}

// Befriend records an accepted friendship between a and b.
func (m *MemPlatform) Befriend(a, b primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.friends[a] = append(m.friends[a], b)
	m.friends[b] = append(m.friends[b], a)
}

// PinsIn returns the stored pins of a collection.
func (m *MemPlatform) PinsIn(collectionID primitive.ObjectID) []models.Pin {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinsWhere(func(p models.Pin) bool { return p.CollectionID == collectionID })
}

// HasCollection reports whether a collection is stored.
func (m *MemPlatform) HasCollection(id primitive.ObjectID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.colls[id]
	return ok
}

// AllPins returns every stored pin, newest first.
func (m *MemPlatform) AllPins() []models.Pin {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinsWhere(func(models.Pin) bool { return true })
}

// must be called with m.mu held.
func (m *MemPlatform) pinsWhere(keep func(models.Pin) bool) []models.Pin {
	out := make([]models.Pin, 0)
	for _, p := range m.pins {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out
}

// must be called with m.mu held.
func (m *MemPlatform) collectionsWhere(keep func(models.Collection) bool) []models.Collection {
	out := make([]models.Collection, 0)
	for _, c := range m.colls {
		if !keep(c) {
			continue
		}
		c.PinCount = 0
		c.FirstPinImage = ""
		var first *models.Pin
		for _, p := range m.pins {
			if p.CollectionID != c.ID {
				continue
			}
			c.PinCount++
			if p.ImageURL != "" && (first == nil || p.CreatedAt.Before(first.CreatedAt)) {
				pp := p
				first = &pp
			}
		}
		if first != nil {
			c.FirstPinImage = first.ImageURL
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out
}

/* -------------------------------------------------------------------------- */
/* annotation backend                                                         */
/* -------------------------------------------------------------------------- */

func (m *MemPlatform) ListPins(ctx context.Context, userID primitive.ObjectID) ([]models.Pin, error) {
	if err := m.enter(OpListPins, userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinsWhere(func(p models.Pin) bool { return p.UserID == userID }), nil
}

func (m *MemPlatform) ListCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	if err := m.enter(OpListCollections, userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectionsWhere(func(c models.Collection) bool { return c.UserID == userID }), nil
}

func (m *MemPlatform) CreatePin(ctx context.Context, p models.Pin) (models.Pin, error) {
	if err := m.enter(OpCreatePin, p); err != nil {
		return models.Pin{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[p.CollectionID]
	if !ok {
		return models.Pin{}, apperr.ErrNotFound
	}
	if c.UserID != p.UserID {
		return models.Pin{}, apperr.ErrNotOwner
	}
	p.ID = primitive.NewObjectID()
	p.TitleCI = text.Fold(p.Title)
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	m.pins[p.ID] = p
	return p, nil
}

func (m *MemPlatform) UpdatePin(ctx context.Context, userID, id primitive.ObjectID, patch models.PinPatch) (models.Pin, error) {
	if err := m.enter(OpUpdatePin, id); err != nil {
		return models.Pin{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[id]
	if !ok {
		return models.Pin{}, apperr.ErrNotFound
	}
	if p.UserID != userID {
		return models.Pin{}, apperr.ErrNotOwner
	}
	if patch.CollectionID != nil {
		c, ok := m.colls[*patch.CollectionID]
		if !ok {
			return models.Pin{}, apperr.ErrNotFound
		}
		if c.UserID != userID {
			return models.Pin{}, apperr.ErrNotOwner
		}
		p.CollectionID = *patch.CollectionID
	}
	if patch.Title != nil {
		p.Title = *patch.Title
		p.TitleCI = text.Fold(p.Title)
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	p.UpdatedAt = m.tick()
	m.pins[id] = p
	return p, nil
}

func (m *MemPlatform) DeletePin(ctx context.Context, userID, id primitive.ObjectID) error {
	if err := m.enter(OpDeletePin, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if p.UserID != userID {
		return apperr.ErrNotOwner
	}
	delete(m.pins, id)
	return nil
}

func (m *MemPlatform) CreateCollection(ctx context.Context, c models.Collection) (models.Collection, error) {
	if err := m.enter(OpCreateCollection, c); err != nil {
		return models.Collection{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = primitive.NewObjectID()
	c.TitleCI = text.Fold(c.Title)
	c.Color = models.ResolveColor(c.Color)
	c.CreatedAt = m.tick()
	c.UpdatedAt = c.CreatedAt
	m.colls[c.ID] = c
	return c, nil
}

func (m *MemPlatform) UpdateCollection(ctx context.Context, userID, id primitive.ObjectID, patch models.CollectionPatch) (models.Collection, error) {
	if err := m.enter(OpUpdateCollection, id); err != nil {
		return models.Collection{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[id]
	if !ok {
		return models.Collection{}, apperr.ErrNotFound
	}
	if c.UserID != userID {
		return models.Collection{}, apperr.ErrNotOwner
	}
	if patch.Title != nil {
		c.Title = *patch.Title
		c.TitleCI = text.Fold(c.Title)
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.IsPublic != nil {
		c.IsPublic = *patch.IsPublic
	}
	if patch.Color != nil {
		c.Color = models.ResolveColor(*patch.Color)
	}
	c.UpdatedAt = m.tick()
	m.colls[id] = c
	return c, nil
}

func (m *MemPlatform) DeleteCollection(ctx context.Context, userID, id primitive.ObjectID) (int64, error) {
	if err := m.enter(OpDeleteCollection, id); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[id]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	if c.UserID != userID {
		return 0, apperr.ErrNotOwner
	}
	var n int64
	for pid, p := range m.pins {
		if p.CollectionID == id {
			delete(m.pins, pid)
			n++
		}
	}
	delete(m.colls, id)
	return n, nil
}

/* -------------------------------------------------------------------------- */
/* feed source                                                                */
/* -------------------------------------------------------------------------- */

func (m *MemPlatform) GetCollection(ctx context.Context, id primitive.ObjectID) (models.Collection, error) {
	if err := m.enter(OpGetCollection, id); err != nil {
		return models.Collection{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[id]
	if !ok {
		return models.Collection{}, apperr.ErrNotFound
	}
	return c, nil
}

func (m *MemPlatform) ListCollectionPins(ctx context.Context, collectionID primitive.ObjectID) ([]models.Pin, error) {
	if err := m.enter(OpListCollectionPins, collectionID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinsWhere(func(p models.Pin) bool { return p.CollectionID == collectionID }), nil
}

func (m *MemPlatform) ListFriendCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	if err := m.enter(OpListFriendCollections, userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	friends := make(map[primitive.ObjectID]bool)
	for _, f := range m.friends[userID] {
		friends[f] = true
	}
	return m.collectionsWhere(func(c models.Collection) bool { return c.IsPublic && friends[c.UserID] }), nil
}

func (m *MemPlatform) ListDiscoverCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	if err := m.enter(OpListDiscoverCollections, userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	excluded := map[primitive.ObjectID]bool{userID: true}
	for _, f := range m.friends[userID] {
		excluded[f] = true
	}
	return m.collectionsWhere(func(c models.Collection) bool { return c.IsPublic && !excluded[c.UserID] }), nil
}
