// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging, CORS); everything the map
// service itself needs lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration. The session cookie is issued by the
	// platform's sign-in service and shares this key.
	SessionKey    string
	SessionName   string // default: pinmap-session
	SessionDomain string // blank means current host
	SessionMaxAge time.Duration
	LoginURL      string // platform sign-in page

	// Place search provider
	PlacesBaseURL    string // e.g., https://maps.googleapis.com/maps/api
	PlacesAPIKey     string
	PlacesBiasRadius int // meters; 0 disables location bias
	SearchDebounce   time.Duration
	SearchLimit      int
	PlaceLookupLimit int // provider requests per client per minute; 0 disables

	// Map view
	DetailZoom   int // zoom used when the camera centers on one pin
	SidebarWidth int // pixels reserved on the left when fitting bounds

	// Map session lifecycle
	IdleSweepInterval time.Duration // how often idle map sessions are swept
	IdleTimeout       time.Duration // sessions unused this long are closed
}
