// internal/testutil/places.go
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/dalemusser/pinmap/internal/app/mapsync/placesearch"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
)

// StubPlaces is an in-memory place provider and reverse geocoder. Places
// match a query when their name contains it, case-insensitively, in
// insertion order.
type StubPlaces struct {
	mu      sync.Mutex
	places  []models.PlaceDetails
	address string
	queries []string
}

// NewStubPlaces returns a provider serving places.
func NewStubPlaces(places ...models.PlaceDetails) *StubPlaces {
	return &StubPlaces{places: places}
}

// SetAddress sets the label returned by Reverse. Empty makes Reverse fail.
func (s *StubPlaces) SetAddress(addr string) {
	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
}

// Queries returns every autocomplete input received.
func (s *StubPlaces) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *StubPlaces) Autocomplete(ctx context.Context, req placesearch.AutocompleteRequest) ([]models.SearchCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, req.Input)
	q := strings.ToLower(req.Input)
	out := []models.SearchCandidate{}
	for _, p := range s.places {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, models.SearchCandidate{ID: p.ID, Text: p.Name + ", " + p.Address, Types: p.Types})
		}
	}
	return out, nil
}

func (s *StubPlaces) Details(ctx context.Context, placeID, sessionToken string) (models.PlaceDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.places {
		if p.ID == placeID {
			return p, nil
		}
	}
	return models.PlaceDetails{}, apperr.ErrPlaceNotFound
}

func (s *StubPlaces) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address == "" {
		return "", apperr.ErrNotFound
	}
	return s.address, nil
}
