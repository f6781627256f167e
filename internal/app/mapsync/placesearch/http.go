// internal/app/mapsync/placesearch/http.go
package placesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.uber.org/zap"
)

// detailFields is the field mask requested from place/details.
const detailFields = "place_id,name,formatted_address,geometry,rating,user_ratings_total,opening_hours,types"

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	BaseURL string // e.g. https://maps.googleapis.com/maps/api
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPProvider talks to a Google-Places-style JSON API. It implements both
// Provider and Geocoder and is shared by every user's search session.
type HTTPProvider struct {
	base   string
	key    string
	client *http.Client
	log    *zap.Logger
}

// NewHTTPProvider builds a provider. A nil cfg.Client gets a client with
// cfg.Timeout (default 10s).
func NewHTTPProvider(cfg HTTPConfig, log *zap.Logger) *HTTPProvider {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPProvider{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		key:    cfg.APIKey,
		client: client,
		log:    log,
	}
}

/* -------------------------------------------------------------------------- */
/* wire types                                                                  */
/* -------------------------------------------------------------------------- */

type apiStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type autocompleteResponse struct {
	apiStatus
	Predictions []struct {
		PlaceID     string   `json:"place_id"`
		Description string   `json:"description"`
		Types       []string `json:"types"`
	} `json:"predictions"`
}

type detailsResponse struct {
	apiStatus
	Result *struct {
		PlaceID          string `json:"place_id"`
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         *struct {
			Location *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		Rating           float64 `json:"rating"`
		UserRatingsTotal int     `json:"user_ratings_total"`
		OpeningHours     *struct {
			OpenNow *bool `json:"open_now"`
		} `json:"opening_hours"`
		Types []string `json:"types"`
	} `json:"result"`
}

type geocodeResponse struct {
	apiStatus
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

/* -------------------------------------------------------------------------- */
/* Provider                                                                    */
/* -------------------------------------------------------------------------- */

// Autocomplete calls place/autocomplete/json. ZERO_RESULTS is an empty
// result, any other non-OK status is an error.
func (p *HTTPProvider) Autocomplete(ctx context.Context, req AutocompleteRequest) ([]models.SearchCandidate, error) {
	q := url.Values{}
	q.Set("input", req.Input)
	if req.SessionToken != "" {
		q.Set("sessiontoken", req.SessionToken)
	}
	if req.Bias != nil {
		q.Set("location", formatLatLng(req.Bias.Lat, req.Bias.Lng))
		q.Set("radius", strconv.Itoa(req.Bias.RadiusMeters))
	}

	var resp autocompleteResponse
	if err := p.get(ctx, "place/autocomplete/json", q, &resp); err != nil {
		return nil, err
	}
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return []models.SearchCandidate{}, nil
	default:
		return nil, statusError("autocomplete", resp.apiStatus)
	}

	out := make([]models.SearchCandidate, 0, len(resp.Predictions))
	for _, pr := range resp.Predictions {
		if pr.PlaceID == "" {
			continue
		}
		out = append(out, models.SearchCandidate{ID: pr.PlaceID, Text: pr.Description, Types: pr.Types})
	}
	return out, nil
}

// Details calls place/details/json.
func (p *HTTPProvider) Details(ctx context.Context, placeID, sessionToken string) (models.PlaceDetails, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", detailFields)
	if sessionToken != "" {
		q.Set("sessiontoken", sessionToken)
	}

	var resp detailsResponse
	if err := p.get(ctx, "place/details/json", q, &resp); err != nil {
		return models.PlaceDetails{}, err
	}
	switch resp.Status {
	case "OK":
	case "NOT_FOUND", "ZERO_RESULTS":
		return models.PlaceDetails{}, apperr.ErrPlaceNotFound
	default:
		return models.PlaceDetails{}, statusError("details", resp.apiStatus)
	}

	r := resp.Result
	if r == nil || r.Geometry == nil || r.Geometry.Location == nil {
		return models.PlaceDetails{}, apperr.ErrPlaceNotFound
	}
	d := models.PlaceDetails{
		ID:          r.PlaceID,
		Name:        r.Name,
		Address:     r.FormattedAddress,
		Lat:         r.Geometry.Location.Lat,
		Lng:         r.Geometry.Location.Lng,
		Rating:      r.Rating,
		ReviewCount: r.UserRatingsTotal,
		Types:       r.Types,
	}
	if r.OpeningHours != nil {
		d.OpenNow = r.OpeningHours.OpenNow
	}
	return d, nil
}

// Reverse calls geocode/json and returns the first formatted address.
func (p *HTTPProvider) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("latlng", formatLatLng(lat, lng))

	var resp geocodeResponse
	if err := p.get(ctx, "geocode/json", q, &resp); err != nil {
		return "", err
	}
	if resp.Status != "OK" {
		return "", statusError("geocode", resp.apiStatus)
	}
	for _, r := range resp.Results {
		if r.FormattedAddress != "" {
			return r.FormattedAddress, nil
		}
	}
	return "", fmt.Errorf("geocode: no address for %s", formatLatLng(lat, lng))
}

func (p *HTTPProvider) get(ctx context.Context, path string, q url.Values, into any) error {
	if p.key != "" {
		q.Set("key", p.key)
	}
	endpoint := p.base + "/" + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}
	p.log.Debug("place provider call",
		zap.String("path", path),
		zap.Duration("took", time.Since(start)))
	return nil
}

func statusError(op string, s apiStatus) error {
	if s.ErrorMessage != "" {
		return fmt.Errorf("%s: %s: %s", op, s.Status, s.ErrorMessage)
	}
	return fmt.Errorf("%s: %s", op, s.Status)
}

func formatLatLng(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lng, 'f', 6, 64)
}
