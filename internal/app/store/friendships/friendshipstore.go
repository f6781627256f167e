// internal/app/store/friendships/friendshipstore.go
package friendshipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/pinmap/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicate is returned when the pair is already linked in that
// direction.
var ErrDuplicate = errors.New("friendship already exists")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("friendships")}
}

// Create links f.UserID to f.FriendID. The friendship graph is owned by the
// platform's social service; this is how it seeds the collection.
func (s *Store) Create(ctx context.Context, f models.Friendship) (models.Friendship, error) {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, f); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Friendship{}, ErrDuplicate
		}
		return models.Friendship{}, err
	}
	return f, nil
}

// FriendIDs returns the users with an accepted friendship with userID, in
// either direction.
func (s *Store) FriendIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	filter := bson.M{
		"status": models.FriendshipAccepted,
		"$or": bson.A{
			bson.M{"user_id": userID},
			bson.M{"friend_id": userID},
		},
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetProjection(bson.M{"user_id": 1, "friend_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	seen := make(map[primitive.ObjectID]struct{})
	out := make([]primitive.ObjectID, 0)
	for cur.Next(ctx) {
		var f models.Friendship
		if err := cur.Decode(&f); err != nil {
			return nil, err
		}
		other := f.FriendID
		if other == userID {
			other = f.UserID
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
