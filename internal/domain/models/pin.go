// internal/domain/models/pin.go
package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pin is a single geotagged annotation owned by a user.
//
// A pin belongs to exactly one collection at a time. Moving a pin is a
// reassignment of CollectionID, never a copy.
type Pin struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	CollectionID primitive.ObjectID `bson:"collection_id" json:"collection_id"`

	Title       string `bson:"title" json:"title"`
	TitleCI     string `bson:"title_ci" json:"-"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Category    string `bson:"category" json:"category"`

	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`

	ImageURL string `bson:"image_url,omitempty" json:"image_url,omitempty"`

	// Place metadata copied from the search provider when the pin was
	// saved from a search result.
	PlaceID     string  `bson:"place_id,omitempty" json:"place_id,omitempty"`
	Address     string  `bson:"address,omitempty" json:"address,omitempty"`
	Rating      float64 `bson:"rating,omitempty" json:"rating,omitempty"`
	ReviewCount int     `bson:"review_count,omitempty" json:"review_count,omitempty"`
	OpenNow     *bool   `bson:"open_now,omitempty" json:"open_now,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasValidPosition reports whether the pin carries usable WGS84 coordinates.
func (p *Pin) HasValidPosition() bool {
	return ValidLatLng(p.Lat, p.Lng)
}

// ValidLatLng reports whether lat/lng are finite and within WGS84 range.
func ValidLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// PinPatch carries the mutable fields of a pin. Nil fields are left unchanged.
type PinPatch struct {
	Title        *string             `json:"title,omitempty"`
	Description  *string             `json:"description,omitempty"`
	Category     *string             `json:"category,omitempty"`
	CollectionID *primitive.ObjectID `json:"collection_id,omitempty"`
	ImageURL     *string             `json:"image_url,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p PinPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.CollectionID == nil && p.ImageURL == nil
}
