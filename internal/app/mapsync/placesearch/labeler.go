// internal/app/mapsync/placesearch/labeler.go
package placesearch

import (
	"context"
	"fmt"

	"github.com/dalemusser/pinmap/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Labeler names a dropped coordinate. Any geocoder failure falls back to the
// raw coordinates; Label never fails.
type Labeler struct {
	geo Geocoder
	log *zap.Logger
}

// NewLabeler returns a Labeler. A nil geocoder always yields coordinates.
func NewLabeler(geo Geocoder, log *zap.Logger) *Labeler {
	return &Labeler{geo: geo, log: log}
}

// Label returns the address at lat/lng, or "45.00000, -122.00000".
func (l *Labeler) Label(ctx context.Context, lat, lng float64) string {
	if l == nil || l.geo == nil {
		return CoordinateLabel(lat, lng)
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Provider(), l.log, "reverse geocode")
	defer cancel()

	addr, err := l.geo.Reverse(ctx, lat, lng)
	if err != nil || addr == "" {
		l.log.Warn("reverse geocode failed; using coordinates",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.Error(err))
		return CoordinateLabel(lat, lng)
	}
	return addr
}

// CoordinateLabel formats a coordinate to five decimals.
func CoordinateLabel(lat, lng float64) string {
	return fmt.Sprintf("%.5f, %.5f", lat, lng)
}
