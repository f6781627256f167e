// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/pinmap/internal/app/features/mapview"
	"github.com/dalemusser/pinmap/internal/app/mapsync"
	"github.com/dalemusser/pinmap/internal/app/mapsync/placesearch"
	"github.com/dalemusser/pinmap/internal/app/platform"
	"github.com/dalemusser/pinmap/internal/app/system/ratelimit"
	"github.com/dalemusser/pinmap/internal/app/system/timeouts"
	"github.com/dalemusser/pinmap/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// services are built once in Startup and shared by BuildHandler and
// Shutdown.
type services struct {
	registry *mapview.Registry
	eviction *workers.IdleEviction
	lookups  *ratelimit.Limiter // nil when unlimited
}

var svc *services

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It
// applies timeout overrides, builds the map session registry over the
// Mongo platform and the place provider, and starts the idle-session
// sweeper.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts configured from environment", zap.Int("overrides", n))
	}

	reg := newRegistry(appCfg, deps, logger)
	ev := workers.NewIdleEviction(reg, logger, appCfg.IdleSweepInterval, appCfg.IdleTimeout)
	ev.Start()

	svc = &services{registry: reg, eviction: ev}
	if appCfg.PlaceLookupLimit > 0 {
		svc.lookups = ratelimit.New(appCfg.PlaceLookupLimit, time.Minute)
	}
	return nil
}

// newRegistry wires one Mongo-backed platform and one HTTP place provider
// into every map session the registry creates.
func newRegistry(appCfg AppConfig, deps DBDeps, logger *zap.Logger) *mapview.Registry {
	plat := platform.New(deps.MongoDatabase, logger.Named("platform"))
	places := placesearch.NewHTTPProvider(placesearch.HTTPConfig{
		BaseURL: appCfg.PlacesBaseURL,
		APIKey:  appCfg.PlacesAPIKey,
		Timeout: timeouts.Provider(),
	}, logger.Named("places"))

	cfg := mapsync.Config{
		DetailZoom:   appCfg.DetailZoom,
		SidebarWidth: appCfg.SidebarWidth,
		Search: placesearch.Options{
			Debounce:   appCfg.SearchDebounce,
			Limit:      appCfg.SearchLimit,
			BiasRadius: appCfg.PlacesBiasRadius,
		},
	}
	ctrlLog := logger.Named("mapsync")

	return mapview.NewRegistry(func() *mapsync.Controller {
		return mapsync.New(mapsync.Deps{
			Backend:  plat,
			Source:   plat,
			Places:   places,
			Geocoder: places,
			Log:      ctrlLog,
		}, cfg)
	}, logger.Named("registry"))
}
