// internal/domain/models/place.go
package models

// SearchCandidate is one ranked autocomplete suggestion. It lives only for
// the duration of a search session and is never persisted.
type SearchCandidate struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Types []string `json:"types,omitempty"`
}

// PlaceDetails is a SearchCandidate resolved to precise coordinates and
// metadata.
type PlaceDetails struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Rating      float64  `json:"rating,omitempty"`
	ReviewCount int      `json:"review_count,omitempty"`
	OpenNow     *bool    `json:"open_now,omitempty"`
	Types       []string `json:"types,omitempty"`
}
