// internal/domain/models/collection.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection is a named, colored, visibility-tagged group of pins owned by
// one user.
//
// NOTE:
//   - PinCount and FirstPinImage are aggregates computed by the collection
//     list query; they are never written by the store.
//   - Deleting a collection cascades to all of its pins.
type Collection struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	Title       string             `bson:"title" json:"title"`
	TitleCI     string             `bson:"title_ci" json:"-"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	IsPublic    bool               `bson:"is_public" json:"is_public"`
	Color       string             `bson:"color,omitempty" json:"color,omitempty"`

	PinCount      int    `bson:"pin_count,omitempty" json:"pin_count"`
	FirstPinImage string `bson:"first_pin_image,omitempty" json:"first_pin_image,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DisplayColor returns the rendering color for the collection's pins.
func (c *Collection) DisplayColor() string {
	return ResolveColor(c.Color)
}

// CollectionPatch carries the mutable fields of a collection.
type CollectionPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"is_public,omitempty"`
	Color       *string `json:"color,omitempty"`
}
