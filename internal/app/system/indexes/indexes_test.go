package indexes_test

import (
	"testing"

	"github.com/dalemusser/pinmap/internal/app/system/indexes"
	"github.com/dalemusser/pinmap/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func indexNames(t *testing.T, db *mongo.Database, coll string) map[string]bool {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cur, err := db.Collection(coll).Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	tests := []struct {
		coll string
		want []string
	}{
		{"pins", []string{"idx_pins_user_createdat_id", "idx_pins_collection_createdat"}},
		{"collections", []string{"idx_collections_user_createdat", "idx_collections_public_user_createdat"}},
		{"friendships", []string{"uniq_friendships_user_friend", "idx_friendships_friend_status"}},
	}
	for _, tt := range tests {
		t.Run(tt.coll, func(t *testing.T) {
			names := indexNames(t, db, tt.coll)
			for _, n := range tt.want {
				if !names[n] {
					t.Errorf("expected index %q on %s", n, tt.coll)
				}
			}
		})
	}
}

func TestEnsureAll_FriendshipUniqueness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	u, f := primitive.NewObjectID(), primitive.NewObjectID()
	c := db.Collection("friendships")
	if _, err := c.InsertOne(ctx, bson.M{"user_id": u, "friend_id": f, "status": "accepted"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := c.InsertOne(ctx, bson.M{"user_id": u, "friend_id": f, "status": "pending"}); err == nil {
		t.Error("expected duplicate key error on second friendship")
	}
}
