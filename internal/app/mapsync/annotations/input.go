// internal/app/mapsync/annotations/input.go
package annotations

import (
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/app/system/htmlsanitize"
	"github.com/dalemusser/pinmap/internal/app/system/normalize"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PinInput is a pin to be created.
type PinInput struct {
	CollectionID primitive.ObjectID `json:"collection_id"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	Category     string             `json:"category,omitempty"`
	Lat          float64            `json:"lat"`
	Lng          float64            `json:"lng"`
	ImageURL     string             `json:"image_url,omitempty"`

	PlaceID     string  `json:"place_id,omitempty"`
	Address     string  `json:"address,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
	OpenNow     *bool   `json:"open_now,omitempty"`
}

// CollectionInput is a collection to be created.
type CollectionInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"is_public"`
	Color       string `json:"color,omitempty"`
}

func cleanTitle(s string) string {
	return normalize.Text(htmlsanitize.PlainText(s))
}

// toPin validates in and builds the pin to dispatch.
func (in PinInput) toPin(userID primitive.ObjectID) (models.Pin, error) {
	title := cleanTitle(in.Title)
	if title == "" {
		return models.Pin{}, apperr.Invalid("title", "title is required")
	}
	if in.CollectionID.IsZero() {
		return models.Pin{}, apperr.Invalid("collection_id", "choose a collection")
	}
	if !models.ValidLatLng(in.Lat, in.Lng) {
		return models.Pin{}, apperr.Invalid("position", "coordinates are out of range")
	}
	return models.Pin{
		UserID:       userID,
		CollectionID: in.CollectionID,
		Title:        title,
		Description:  htmlsanitize.Sanitize(in.Description),
		Category:     models.NormalizeCategory(in.Category),
		Lat:          in.Lat,
		Lng:          in.Lng,
		ImageURL:     in.ImageURL,
		PlaceID:      in.PlaceID,
		Address:      normalize.Text(in.Address),
		Rating:       in.Rating,
		ReviewCount:  in.ReviewCount,
		OpenNow:      in.OpenNow,
	}, nil
}

func (in CollectionInput) toCollection(userID primitive.ObjectID) (models.Collection, error) {
	title := cleanTitle(in.Title)
	if title == "" {
		return models.Collection{}, apperr.Invalid("title", "title is required")
	}
	return models.Collection{
		UserID:      userID,
		Title:       title,
		Description: htmlsanitize.Sanitize(in.Description),
		IsPublic:    in.IsPublic,
		Color:       models.ResolveColor(in.Color),
	}, nil
}

func cleanPinPatch(p models.PinPatch) (models.PinPatch, error) {
	if p.Title != nil {
		t := cleanTitle(*p.Title)
		if t == "" {
			return p, apperr.Invalid("title", "title is required")
		}
		p.Title = &t
	}
	if p.Description != nil {
		d := htmlsanitize.Sanitize(*p.Description)
		p.Description = &d
	}
	if p.Category != nil {
		c := models.NormalizeCategory(*p.Category)
		p.Category = &c
	}
	if p.CollectionID != nil && p.CollectionID.IsZero() {
		return p, apperr.Invalid("collection_id", "choose a collection")
	}
	return p, nil
}

func cleanCollectionPatch(p models.CollectionPatch) (models.CollectionPatch, error) {
	if p.Title != nil {
		t := cleanTitle(*p.Title)
		if t == "" {
			return p, apperr.Invalid("title", "title is required")
		}
		p.Title = &t
	}
	if p.Description != nil {
		d := htmlsanitize.Sanitize(*p.Description)
		p.Description = &d
	}
	if p.Color != nil {
		c := models.ResolveColor(*p.Color)
		p.Color = &c
	}
	return p, nil
}
