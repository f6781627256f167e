// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	errorsfeature "github.com/dalemusser/pinmap/internal/app/features/errors"
	healthfeature "github.com/dalemusser/pinmap/internal/app/features/health"
	mapviewfeature "github.com/dalemusser/pinmap/internal/app/features/mapview"
	"github.com/dalemusser/pinmap/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. The router loads the session user on
// every request and mounts the map API, the health check and the error
// endpoints.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if svc == nil {
		return nil, errors.New("bootstrap: Startup has not run")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	if appCfg.LoginURL != "" {
		sessionMgr.LoginURL = appCfg.LoginURL
	}

	return newRouter(sessionMgr, svc, deps, []byte(appCfg.SessionKey), secure, logger), nil
}

func newRouter(sm *auth.SessionManager, s *services, deps DBDeps, hashKey []byte, secure bool, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sm.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, s.registry, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Map API
	mapHandler := mapviewfeature.NewHandler(s.registry, hashKey, secure, logger.Named("mapview"))
	mapHandler.Lookups = s.lookups
	r.Mount("/map", mapviewfeature.Routes(mapHandler, sm))

	// Error endpoints
	errorsHandler := errorsfeature.NewHandler()
	r.Get("/forbidden", errorsHandler.Forbidden)
	r.Get("/unauthorized", errorsHandler.Unauthorized)
	r.NotFound(errorsHandler.NotFound)

	return r
}
