// internal/app/features/health/handler.go
package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	uierrors "github.com/dalemusser/pinmap/internal/app/features/errors"
	"github.com/dalemusser/pinmap/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Sessions reports how many map sessions are live.
type Sessions interface {
	Len() int
}

// Handler serves liveness and readiness probes.
type Handler struct {
	Client   *mongo.Client
	Sessions Sessions // optional
	Log      *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(client *mongo.Client, sessions Sessions, logger *zap.Logger) *Handler {
	return &Handler{Client: client, Sessions: sessions, Log: logger}
}

type check struct {
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type readiness struct {
	Status      string           `json:"status"`
	Checks      map[string]check `json:"checks"`
	MapSessions *int             `json:"map_sessions,omitempty"`
}

var errNoClient = errors.New("mongo client not configured")

// Live handles GET /health/live. It only proves the process is serving.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	uierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health. It pings MongoDB and answers 503 when the
// ping fails:
//
//	{"status":"ok","checks":{"mongo":{"ok":true,"latency_ms":1}},"map_sessions":3}
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := readiness{Status: "ok", Checks: map[string]check{"mongo": h.pingMongo(ctx)}}
	if h.Sessions != nil {
		n := h.Sessions.Len()
		resp.MapSessions = &n
	}

	status := http.StatusOK
	for name, c := range resp.Checks {
		if !c.OK {
			h.Log.Error("health check failed", zap.String("check", name), zap.String("error", c.Error))
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	uierrors.WriteJSON(w, status, resp)
}

func (h *Handler) pingMongo(ctx context.Context) check {
	start := time.Now()
	err := errNoClient
	if h.Client != nil {
		err = h.Client.Ping(ctx, readpref.Primary())
	}
	c := check{OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}
