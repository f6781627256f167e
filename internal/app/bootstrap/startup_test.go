package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/pinmap/internal/testutil"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validAppConfig() AppConfig {
	return AppConfig{
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "pinmap_test",
		SessionKey:        strings.Repeat("s", 32),
		SessionName:       "pinmap-session",
		SessionMaxAge:     time.Hour,
		PlacesBaseURL:     "https://maps.example.com/api",
		SearchLimit:       5,
		PlaceLookupLimit:  120,
		DetailZoom:        15,
		SidebarWidth:      320,
		IdleSweepInterval: time.Minute,
		IdleTimeout:       30 * time.Minute,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "valid", env: "dev", mutate: func(*AppConfig) {}},
		{name: "empty mongo uri", env: "dev", mutate: func(c *AppConfig) { c.MongoURI = "" }, wantErr: true},
		{name: "empty session key", env: "dev", mutate: func(c *AppConfig) { c.SessionKey = "" }, wantErr: true},
		{name: "short key allowed in dev", env: "dev", mutate: func(c *AppConfig) { c.SessionKey = "short" }},
		{name: "short key rejected in prod", env: "prod", mutate: func(c *AppConfig) { c.SessionKey = "short" }, wantErr: true},
		{name: "relative places url", env: "dev", mutate: func(c *AppConfig) { c.PlacesBaseURL = "/api" }, wantErr: true},
		{name: "zero search limit", env: "dev", mutate: func(c *AppConfig) { c.SearchLimit = 0 }, wantErr: true},
		{name: "negative lookup limit", env: "dev", mutate: func(c *AppConfig) { c.PlaceLookupLimit = -1 }, wantErr: true},
		{name: "negative bias radius", env: "dev", mutate: func(c *AppConfig) { c.PlacesBiasRadius = -1 }, wantErr: true},
		{name: "zero idle timeout", env: "dev", mutate: func(c *AppConfig) { c.IdleTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAppConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{Env: tt.env}, cfg, testLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	for i := 0; i < 2; i++ {
		if err := EnsureSchema(ctx, nil, validAppConfig(), deps, testLogger()); err != nil {
			t.Fatalf("EnsureSchema run %d failed: %v", i+1, err)
		}
	}

	for _, name := range []string{"pins", "collections", "friendships"} {
		cur, err := db.Collection(name).Indexes().List(ctx)
		if err != nil {
			t.Fatalf("list indexes on %s: %v", name, err)
		}
		var idx []bson.M
		if err := cur.All(ctx, &idx); err != nil {
			t.Fatalf("decode indexes on %s: %v", name, err)
		}
		if len(idx) < 2 {
			t.Errorf("%s: expected indexes beyond _id, got %d", name, len(idx))
		}
	}
}

func TestLifecycle_RoutesAndShutdown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	appCfg := validAppConfig()
	coreCfg := &config.CoreConfig{Env: "dev"}
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}

	if err := Startup(ctx, coreCfg, appCfg, deps, testLogger()); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	h, err := BuildHandler(coreCfg, appCfg, deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"map state is public", http.MethodGet, "/map/state", http.StatusOK},
		{"edits need a session", http.MethodPost, "/map/pins", http.StatusUnauthorized},
		{"forbidden page", http.MethodGet, "/forbidden", http.StatusForbidden},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound},
		{"health", http.MethodGet, "/health", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}")))
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d (body %s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	// The /map/state request above opened one anonymous session.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health struct {
		MapSessions *int `json:"map_sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.MapSessions == nil || *health.MapSessions != 1 {
		t.Errorf("map_sessions = %v, want 1", health.MapSessions)
	}

	// MongoClient is left out so the test database's cleanup still owns it.
	if err := Shutdown(ctx, coreCfg, appCfg, DBDeps{MongoDatabase: db}, testLogger()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if svc != nil {
		t.Error("expected services to be released after Shutdown")
	}
}

func TestBuildHandler_RequiresStartup(t *testing.T) {
	svc = nil
	if _, err := BuildHandler(&config.CoreConfig{}, validAppConfig(), DBDeps{}, testLogger()); err == nil {
		t.Fatal("expected error when Startup has not run")
	}
}
