// internal/testutil/fixtures.go
package testutil

import (
	"context"
	"testing"
	"time"

	friendshipstore "github.com/dalemusser/pinmap/internal/app/store/friendships"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateCollection creates a collection owned by userID.
func (f *Fixtures) CreateCollection(ctx context.Context, userID primitive.ObjectID, title string, public bool) models.Collection {
	f.t.Helper()

	now := time.Now().UTC()
	c := models.Collection{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		TitleCI:   text.Fold(title),
		IsPublic:  public,
		Color:     models.DefaultColor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("collections").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create test collection: %v", err)
	}
	return c
}

// CreatePin creates a pin in collectionID. Successive calls get strictly
// increasing CreatedAt values so "newest first" ordering is deterministic.
func (f *Fixtures) CreatePin(ctx context.Context, userID, collectionID primitive.ObjectID, title string, lat, lng float64) models.Pin {
	f.t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	p := models.Pin{
		ID:           primitive.NewObjectID(),
		UserID:       userID,
		CollectionID: collectionID,
		Title:        title,
		TitleCI:      text.Fold(title),
		Category:     models.CategoryOther,
		Lat:          lat,
		Lng:          lng,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := f.db.Collection("pins").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test pin: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	return p
}

// CreatePinWithImage is CreatePin plus an image reference.
func (f *Fixtures) CreatePinWithImage(ctx context.Context, userID, collectionID primitive.ObjectID, title, imageURL string) models.Pin {
	f.t.Helper()

	p := f.CreatePin(ctx, userID, collectionID, title, 45.0, -122.0)
	if _, err := f.db.Collection("pins").UpdateByID(ctx, p.ID,
		bson.M{"$set": bson.M{"image_url": imageURL}}); err != nil {
		f.t.Fatalf("failed to set pin image: %v", err)
	}
	p.ImageURL = imageURL
	return p
}

// CreateFriendship links userID to friendID with the given status.
func (f *Fixtures) CreateFriendship(ctx context.Context, userID, friendID primitive.ObjectID, status string) models.Friendship {
	f.t.Helper()

	fr, err := friendshipstore.New(f.db).Create(ctx, models.Friendship{
		UserID:   userID,
		FriendID: friendID,
		Status:   status,
	})
	if err != nil {
		f.t.Fatalf("failed to create test friendship: %v", err)
	}
	return fr
}
