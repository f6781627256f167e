// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dalemusser/pinmap/internal/app/mapsync/placesearch"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for PinMap.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, places_api_key, etc.
//   - Environment variables: PINMAP_MONGO_URI, PINMAP_PLACES_API_KEY, etc.
//   - Command-line flags: --mongo_uri, --places_api_key, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "pinmap", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "pinmap-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},
	{Name: "login_url", Default: "/login", Desc: "Platform sign-in page for signed-out browser requests"},

	// Place search provider
	{Name: "places_base_url", Default: "https://maps.googleapis.com/maps/api", Desc: "Places API base URL"},
	{Name: "places_api_key", Default: "", Desc: "Places API key"},
	{Name: "places_bias_radius", Default: 50000, Desc: "Search location bias radius in meters (0 disables)"},
	{Name: "search_debounce", Default: "300ms", Desc: "Quiet period before a search query reaches the provider"},
	{Name: "search_limit", Default: placesearch.DefaultLimit, Desc: "Maximum search candidates returned"},
	{Name: "place_lookup_limit", Default: 120, Desc: "Place provider requests allowed per client per minute (0 disables)"},

	// Map view
	{Name: "detail_zoom", Default: 15, Desc: "Zoom level when centering on a single pin"},
	{Name: "sidebar_width", Default: 320, Desc: "Pixels reserved for the sidebar when fitting bounds"},

	// Map sessions
	{Name: "idle_sweep_interval", Default: "1m", Desc: "How often idle map sessions are swept"},
	{Name: "idle_timeout", Default: "30m", Desc: "Map sessions unused this long are closed"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, PINMAP_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "PINMAP", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 30*24*time.Hour),
		LoginURL:         appValues.String("login_url"),

		PlacesBaseURL:    appValues.String("places_base_url"),
		PlacesAPIKey:     appValues.String("places_api_key"),
		PlacesBiasRadius: appValues.Int("places_bias_radius"),
		SearchDebounce:   appValues.Duration("search_debounce", placesearch.DefaultDebounce),
		SearchLimit:      appValues.Int("search_limit"),
		PlaceLookupLimit: appValues.Int("place_lookup_limit"),

		DetailZoom:   appValues.Int("detail_zoom"),
		SidebarWidth: appValues.Int("sidebar_width"),

		IdleSweepInterval: appValues.Duration("idle_sweep_interval", time.Minute),
		IdleTimeout:       appValues.Duration("idle_timeout", 30*time.Minute),
	}

	if appCfg.PlacesAPIKey == "" {
		logger.Warn("places_api_key is empty; place search requests will be rejected by the provider")
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation. It returns an
// error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.SessionKey == "" {
		return errors.New("session_key must be set")
	}
	if coreCfg != nil && coreCfg.Env == "prod" && len(appCfg.SessionKey) < 32 {
		return errors.New("session_key must be at least 32 characters in prod")
	}
	u, err := url.Parse(appCfg.PlacesBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid places_base_url %q", appCfg.PlacesBaseURL)
	}
	if appCfg.SearchLimit < 1 {
		return fmt.Errorf("search_limit must be positive, got %d", appCfg.SearchLimit)
	}
	if appCfg.PlaceLookupLimit < 0 {
		return fmt.Errorf("place_lookup_limit must not be negative, got %d", appCfg.PlaceLookupLimit)
	}
	if appCfg.PlacesBiasRadius < 0 {
		return fmt.Errorf("places_bias_radius must not be negative, got %d", appCfg.PlacesBiasRadius)
	}
	if appCfg.IdleTimeout <= 0 || appCfg.IdleSweepInterval <= 0 {
		return errors.New("idle_timeout and idle_sweep_interval must be positive")
	}
	return nil
}
