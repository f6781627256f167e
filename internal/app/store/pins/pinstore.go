// internal/app/store/pins/pinstore.go
package pinstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("pins")}
}

// newestFirst is the canonical pin ordering: creation time descending,
// ObjectID descending as tiebreak.
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// GetByID loads a pin. Returns apperr.ErrNotFound if it does not exist.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Pin, error) {
	var p models.Pin
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Pin{}, apperr.ErrNotFound
		}
		return models.Pin{}, err
	}
	return p, nil
}

// Create assigns the ID, folds the title and stamps timestamps.
func (s *Store) Create(ctx context.Context, p models.Pin) (models.Pin, error) {
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.TitleCI = text.Fold(p.Title)
	p.Category = models.NormalizeCategory(p.Category)
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.Pin{}, err
	}
	return p, nil
}

// ListByUser returns every pin owned by userID, newest first.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Pin, error) {
	return s.find(ctx, bson.M{"user_id": userID})
}

// ListByCollection returns the pins of one collection, newest first.
func (s *Store) ListByCollection(ctx context.Context, collectionID primitive.ObjectID) ([]models.Pin, error) {
	return s.find(ctx, bson.M{"collection_id": collectionID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Pin, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.Pin, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies patch and returns the updated pin. Moving a pin is a single
// $set of collection_id.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, patch models.PinPatch) (models.Pin, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Title != nil {
		set["title"] = *patch.Title
		set["title_ci"] = text.Fold(*patch.Title)
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Category != nil {
		set["category"] = models.NormalizeCategory(*patch.Category)
	}
	if patch.CollectionID != nil {
		set["collection_id"] = *patch.CollectionID
	}
	if patch.ImageURL != nil {
		set["image_url"] = *patch.ImageURL
	}

	var p models.Pin
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Pin{}, apperr.ErrNotFound
		}
		return models.Pin{}, err
	}
	return p, nil
}

// Delete removes a pin by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByCollection removes all pins belonging to a collection.
// Returns the number of documents deleted.
func (s *Store) DeleteByCollection(ctx context.Context, collectionID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"collection_id": collectionID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountByCollection returns the number of pins in a collection.
func (s *Store) CountByCollection(ctx context.Context, collectionID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"collection_id": collectionID})
}
