// Package platform is the data platform of the map engine: it implements
// annotations.Backend and feeds.Source over the Mongo stores, enforcing
// ownership and cascading collection deletes.
package platform

import (
	"context"
	"fmt"

	collectionstore "github.com/dalemusser/pinmap/internal/app/store/collections"
	friendshipstore "github.com/dalemusser/pinmap/internal/app/store/friendships"
	pinstore "github.com/dalemusser/pinmap/internal/app/store/pins"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/app/system/txn"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// DiscoverLimit caps the discover tab's collection list.
const DiscoverLimit = 50

// Platform serves one database.
type Platform struct {
	db      *mongo.Database
	log     *zap.Logger
	pins    *pinstore.Store
	colls   *collectionstore.Store
	friends *friendshipstore.Store
}

// New returns a Platform over db.
func New(db *mongo.Database, log *zap.Logger) *Platform {
	return &Platform{
		db:      db,
		log:     log,
		pins:    pinstore.New(db),
		colls:   collectionstore.New(db),
		friends: friendshipstore.New(db),
	}
}

// ownedCollection loads a collection and checks that userID owns it.
func (p *Platform) ownedCollection(ctx context.Context, userID, id primitive.ObjectID) (models.Collection, error) {
	c, err := p.colls.GetByID(ctx, id)
	if err != nil {
		return models.Collection{}, err
	}
	if c.UserID != userID {
		return models.Collection{}, apperr.ErrNotOwner
	}
	return c, nil
}

func (p *Platform) ownedPin(ctx context.Context, userID, id primitive.ObjectID) (models.Pin, error) {
	pin, err := p.pins.GetByID(ctx, id)
	if err != nil {
		return models.Pin{}, err
	}
	if pin.UserID != userID {
		return models.Pin{}, apperr.ErrNotOwner
	}
	return pin, nil
}

/* -------------------------------------------------------------------------- */
/* annotations.Backend                                                        */
/* -------------------------------------------------------------------------- */

func (p *Platform) ListPins(ctx context.Context, userID primitive.ObjectID) ([]models.Pin, error) {
	return p.pins.ListByUser(ctx, userID)
}

func (p *Platform) ListCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	return p.colls.ListByUserWithStats(ctx, userID)
}

// CreatePin inserts a pin into a collection the pin's user owns. A failure
// to touch the collection afterwards is reported as a partial failure; the
// pin is kept.
func (p *Platform) CreatePin(ctx context.Context, pin models.Pin) (models.Pin, error) {
	if _, err := p.ownedCollection(ctx, pin.UserID, pin.CollectionID); err != nil {
		return models.Pin{}, fmt.Errorf("create pin: %w", err)
	}
	created, err := p.pins.Create(ctx, pin)
	if err != nil {
		return models.Pin{}, fmt.Errorf("create pin: %w", err)
	}
	if err := p.colls.Touch(ctx, created.CollectionID); err != nil {
		p.log.Warn("pin saved but collection not touched",
			zap.String("pin_id", created.ID.Hex()),
			zap.String("collection_id", created.CollectionID.Hex()),
			zap.Error(err))
		return created, &apperr.PartialFailure{Entity: "pin", Err: err}
	}
	return created, nil
}

// UpdatePin edits a pin owned by userID. Moving it requires owning the
// target collection too.
func (p *Platform) UpdatePin(ctx context.Context, userID, id primitive.ObjectID, patch models.PinPatch) (models.Pin, error) {
	if _, err := p.ownedPin(ctx, userID, id); err != nil {
		return models.Pin{}, err
	}
	if patch.CollectionID != nil {
		if _, err := p.ownedCollection(ctx, userID, *patch.CollectionID); err != nil {
			return models.Pin{}, fmt.Errorf("move pin: %w", err)
		}
	}
	return p.pins.Update(ctx, id, patch)
}

func (p *Platform) DeletePin(ctx context.Context, userID, id primitive.ObjectID) error {
	if _, err := p.ownedPin(ctx, userID, id); err != nil {
		return err
	}
	n, err := p.pins.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (p *Platform) CreateCollection(ctx context.Context, c models.Collection) (models.Collection, error) {
	if c.UserID.IsZero() {
		return models.Collection{}, apperr.ErrLoginRequired
	}
	return p.colls.Create(ctx, c)
}

func (p *Platform) UpdateCollection(ctx context.Context, userID, id primitive.ObjectID, patch models.CollectionPatch) (models.Collection, error) {
	if _, err := p.ownedCollection(ctx, userID, id); err != nil {
		return models.Collection{}, err
	}
	return p.colls.Update(ctx, id, patch)
}

// DeleteCollection removes a collection and its pins in one transaction
// where the deployment supports it.
func (p *Platform) DeleteCollection(ctx context.Context, userID, id primitive.ObjectID) (int64, error) {
	if _, err := p.ownedCollection(ctx, userID, id); err != nil {
		return 0, err
	}

	var removed int64
	err := txn.Run(ctx, p.db.Client(), p.log, func(ctx context.Context) error {
		n, err := p.pins.DeleteByCollection(ctx, id)
		if err != nil {
			return err
		}
		if _, err := p.colls.Delete(ctx, id); err != nil {
			return err
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete collection: %w", err)
	}
	p.log.Info("collection deleted",
		zap.String("collection_id", id.Hex()),
		zap.Int64("pins_removed", removed))
	return removed, nil
}

/* -------------------------------------------------------------------------- */
/* feeds.Source                                                               */
/* -------------------------------------------------------------------------- */

func (p *Platform) GetCollection(ctx context.Context, id primitive.ObjectID) (models.Collection, error) {
	return p.colls.GetByID(ctx, id)
}

func (p *Platform) ListCollectionPins(ctx context.Context, collectionID primitive.ObjectID) ([]models.Pin, error) {
	return p.pins.ListByCollection(ctx, collectionID)
}

func (p *Platform) ListFriendCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	ids, err := p.friends.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.colls.ListPublicByUsers(ctx, ids)
}

// ListDiscoverCollections lists public collections of strangers. A
// signed-out viewer sees every public collection.
func (p *Platform) ListDiscoverCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	var excluded []primitive.ObjectID
	if !userID.IsZero() {
		ids, err := p.friends.FriendIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		excluded = append(ids, userID)
	}
	return p.colls.ListPublicExcluding(ctx, excluded, DiscoverLimit)
}
