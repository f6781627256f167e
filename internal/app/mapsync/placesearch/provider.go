// internal/app/mapsync/placesearch/provider.go
package placesearch

import (
	"context"

	"github.com/dalemusser/pinmap/internal/domain/models"
)

// Bias steers autocomplete toward a point.
type Bias struct {
	Lat          float64
	Lng          float64
	RadiusMeters int
}

// AutocompleteRequest is one autocomplete call. SessionToken groups the
// autocomplete calls of a search session with the Details call that ends it.
type AutocompleteRequest struct {
	Input        string
	SessionToken string
	Bias         *Bias
}

// Provider is the external place search service.
type Provider interface {
	// Autocomplete returns ranked candidates for req.Input.
	Autocomplete(ctx context.Context, req AutocompleteRequest) ([]models.SearchCandidate, error)
	// Details resolves a candidate. It returns apperr.ErrPlaceNotFound when
	// the place has no geometry.
	Details(ctx context.Context, placeID, sessionToken string) (models.PlaceDetails, error)
}

// Geocoder turns a coordinate into a human-readable address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}
