// internal/app/mapsync/annotations/backend.go
package annotations

import (
	"context"

	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Backend is the data platform holding a user's pins and collections.
// Implementations enforce ownership and return apperr sentinels
// (ErrNotFound, ErrNotOwner, ErrValidation). CreatePin may return both a
// pin and an *apperr.PartialFailure when the pin was saved but a secondary
// step failed.
type Backend interface {
	// ListPins returns userID's pins, newest first.
	ListPins(ctx context.Context, userID primitive.ObjectID) ([]models.Pin, error)
	// ListCollections returns userID's collections carrying PinCount and
	// FirstPinImage.
	ListCollections(ctx context.Context, userID primitive.ObjectID) ([]models.Collection, error)

	CreatePin(ctx context.Context, p models.Pin) (models.Pin, error)
	UpdatePin(ctx context.Context, userID, id primitive.ObjectID, patch models.PinPatch) (models.Pin, error)
	DeletePin(ctx context.Context, userID, id primitive.ObjectID) error

	CreateCollection(ctx context.Context, c models.Collection) (models.Collection, error)
	UpdateCollection(ctx context.Context, userID, id primitive.ObjectID, patch models.CollectionPatch) (models.Collection, error)
	// DeleteCollection removes the collection and every pin in it, returning
	// the number of pins removed.
	DeleteCollection(ctx context.Context, userID, id primitive.ObjectID) (int64, error)
}
