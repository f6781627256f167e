// internal/app/mapsync/annotations/snapshot.go
package annotations

import (
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Snapshot is a consistent copy of a user's pins and collections plus the
// color of every collection. Pins whose collection is unknown are kept and
// render in models.DefaultColor.
type Snapshot struct {
	UserID      primitive.ObjectID
	Pins        []models.Pin
	Collections []models.Collection
	Colors      map[primitive.ObjectID]string
}

// ColorFor returns the marker color for pins of collectionID.
func (s Snapshot) ColorFor(collectionID primitive.ObjectID) string {
	if c, ok := s.Colors[collectionID]; ok {
		return c
	}
	return models.DefaultColor
}

// Collection looks up one collection.
func (s Snapshot) Collection(id primitive.ObjectID) (models.Collection, bool) {
	for _, c := range s.Collections {
		if c.ID == id {
			return c, true
		}
	}
	return models.Collection{}, false
}

// Pin looks up one pin.
func (s Snapshot) Pin(id primitive.ObjectID) (models.Pin, bool) {
	for _, p := range s.Pins {
		if p.ID == id {
			return p, true
		}
	}
	return models.Pin{}, false
}
