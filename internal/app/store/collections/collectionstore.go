// internal/app/store/collections/collectionstore.go
package collectionstore

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
	return &Store{c: db.Collection("collections")}
}

// GetByID loads a collection without stats. Returns apperr.ErrNotFound if
// it does not exist.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Collection, error) {
	var c models.Collection
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Collection{}, apperr.ErrNotFound
		}
		return models.Collection{}, err
	}
	return c, nil
}

// Create inserts a collection. The color is resolved before insert so every
// stored collection renders.
func (s *Store) Create(ctx context.Context, c models.Collection) (models.Collection, error) {
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID()
	c.TitleCI = text.Fold(c.Title)
	c.Color = models.ResolveColor(c.Color)
	c.PinCount = 0
	c.FirstPinImage = ""
	c.CreatedAt = now
	c.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		return models.Collection{}, err
	}
	return c, nil
}

// Update applies patch and returns the updated collection (without stats).
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, patch models.CollectionPatch) (models.Collection, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Title != nil {
		set["title"] = *patch.Title
		set["title_ci"] = text.Fold(*patch.Title)
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.IsPublic != nil {
		set["is_public"] = *patch.IsPublic
	}
	if patch.Color != nil {
		set["color"] = models.ResolveColor(*patch.Color)
	}

	var c models.Collection
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Collection{}, apperr.ErrNotFound
		}
		return models.Collection{}, err
	}
	return c, nil
}

// Touch bumps updated_at after a change to the collection's pins.
func (s *Store) Touch(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}})
	return err
}

// Delete removes a collection by ID. Member pins are removed by the caller
// in the same transaction. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

/* -------------------------------------------------------------------------- */
/* Collection lists with stats                                                */
/* -------------------------------------------------------------------------- */

// ListByUserWithStats returns userID's collections, newest first, each
// carrying pin_count and first_pin_image.
func (s *Store) ListByUserWithStats(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error) {
	return s.listWithStats(ctx, bson.M{"user_id": userID}, 0)
}

// ListPublicByUsers returns the public collections owned by any of userIDs.
func (s *Store) ListPublicByUsers(ctx context.Context, userIDs []primitive.ObjectID) ([]models.Collection, error) {
	if len(userIDs) == 0 {
		return []models.Collection{}, nil
	}
	return s.listWithStats(ctx, bson.M{"is_public": true, "user_id": bson.M{"$in": userIDs}}, 0)
}

// ListPublicExcluding returns public collections whose owner is not in
// excluded, newest first, at most limit (0 = no limit).
func (s *Store) ListPublicExcluding(ctx context.Context, excluded []primitive.ObjectID, limit int64) ([]models.Collection, error) {
	filter := bson.M{"is_public": true}
	if len(excluded) > 0 {
		filter["user_id"] = bson.M{"$nin": excluded}
	}
	return s.listWithStats(ctx, filter, limit)
}

func (s *Store) listWithStats(ctx context.Context, match bson.M, limit int64) ([]models.Collection, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	pipeline = append(pipeline, statsStages()...)

	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.Collection, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// statsStages joins member pins (oldest first) and derives pin_count and
// first_pin_image, the first non-empty image among them.
func statsStages() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.M{
			"from": "pins",
			"let":  bson.M{"cid": "$_id"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$eq": bson.A{"$collection_id", "$$cid"}}}},
				bson.M{"$sort": bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
				bson.M{"$project": bson.M{"image_url": 1}},
			},
			"as": "member_pins",
		}}},
		{{Key: "$addFields", Value: bson.M{
			"pin_count": bson.M{"$size": "$member_pins"},
			"first_pin_image": bson.M{"$ifNull": bson.A{
				bson.M{"$arrayElemAt": bson.A{
					bson.M{"$filter": bson.M{
						"input": "$member_pins.image_url",
						"as":    "img",
						"cond":  bson.M{"$gt": bson.A{"$$img", ""}},
					}},
					0,
				}},
				"",
			}},
		}}},
		{{Key: "$project", Value: bson.M{"member_pins": 0}}},
	}
}
