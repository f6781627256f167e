// internal/app/features/mapview/handler.go
package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	uierrors "github.com/dalemusser/pinmap/internal/app/features/errors"
	"github.com/dalemusser/pinmap/internal/app/mapsync"
	"github.com/dalemusser/pinmap/internal/app/mapsync/feeds"
	"github.com/dalemusser/pinmap/internal/app/mapsync/placesearch"
	"github.com/dalemusser/pinmap/internal/app/mapsync/searchflow"
	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/app/system/auth"
	"github.com/dalemusser/pinmap/internal/app/system/ratelimit"
	"github.com/dalemusser/pinmap/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AnonCookie names the cookie that identifies a signed-out map session.
const AnonCookie = "pinmap_map"

const maxBody = 1 << 20

// Handler serves the map API. Each request is routed to the controller of
// its session.
type Handler struct {
	Registry *Registry
	Log      *zap.Logger
	// Lookups caps place-provider requests per client. Nil disables it.
	Lookups *ratelimit.Limiter

	cookies *securecookie.SecureCookie
	secure  bool
}

// NewHandler constructs a map Handler. hashKey signs the anonymous session
// cookie.
func NewHandler(reg *Registry, hashKey []byte, secure bool, logger *zap.Logger) *Handler {
	return &Handler{
		Registry: reg,
		Log:      logger,
		cookies:  securecookie.New(hashKey, nil),
		secure:   secure,
	}
}

// controller returns the request's controller. A signed-in user's
// controller is loaded before any request can use it.
func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (*mapsync.Controller, error) {
	if u, ok := auth.CurrentUser(r); ok {
		uid, ok := u.ObjectID()
		if !ok {
			return nil, apperr.ErrLoginRequired
		}
		return h.Registry.Get(r.Context(), "user:"+uid.Hex(), func(ctrl *mapsync.Controller) error {
			ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "load map")
			defer cancel()
			return ctrl.Load(ctx, uid)
		})
	}
	return h.Registry.Get(r.Context(), "anon:"+h.anonID(w, r), nil)
}

// anonID reads the signed anonymous session id, issuing a new one when the
// cookie is missing or does not verify.
func (h *Handler) anonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(AnonCookie); err == nil {
		var id string
		if err := h.cookies.Decode(AnonCookie, c.Value, &id); err == nil && id != "" {
			return id
		}
	}
	id := uuid.NewString()
	encoded, err := h.cookies.Encode(AnonCookie, id)
	if err != nil {
		h.Log.Warn("anonymous map cookie not issued", zap.Error(err))
		return id
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookie,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// currentUserID returns the signed-in user's id. Routes that need it run
// behind RequireSignedIn.
func currentUserID(r *http.Request) (primitive.ObjectID, error) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		return primitive.NilObjectID, apperr.ErrLoginRequired
	}
	uid, ok := u.ObjectID()
	if !ok {
		return primitive.NilObjectID, apperr.ErrLoginRequired
	}
	return uid, nil
}

/* -------------------------------------------------------------------------- */
/* helpers                                                                    */
/* -------------------------------------------------------------------------- */

// fail renders err. Superseded and expired requests get 409 so clients
// can drop or retry them.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mapsync.ErrClosed), errors.Is(err, placesearch.ErrClosed):
		uierrors.WriteJSON(w, http.StatusConflict, uierrors.Body{Error: "Map session expired. Reload the map.", Kind: "session_expired"})
	case errors.Is(err, feeds.ErrStale), errors.Is(err, placesearch.ErrSuperseded):
		uierrors.WriteJSON(w, http.StatusConflict, uierrors.Body{Error: "Superseded by a newer request.", Kind: "superseded"})
	case errors.Is(err, searchflow.ErrBusy):
		uierrors.WriteJSON(w, http.StatusConflict, uierrors.Body{Error: "A save is already in progress.", Kind: "busy"})
	case errors.Is(err, context.DeadlineExceeded):
		uierrors.WriteJSON(w, http.StatusGatewayTimeout, uierrors.Body{Error: "The request timed out. Try again.", Kind: "timeout"})
	default:
		uierrors.Render(w, r, h.Log, err)
	}
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("", "malformed request body")
	}
	return nil
}

func objectIDParam(r *http.Request, name string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		return primitive.NilObjectID, apperr.Invalid(name, "bad id")
	}
	return oid, nil
}

func latLngQuery(r *http.Request) (float64, float64, error) {
	lat, err := strconv.ParseFloat(query.Get(r, "lat"), 64)
	if err != nil {
		return 0, 0, apperr.Invalid("lat", "lat must be a number")
	}
	lng, err := strconv.ParseFloat(query.Get(r, "lng"), 64)
	if err != nil {
		return 0, 0, apperr.Invalid("lng", "lng must be a number")
	}
	return lat, lng, nil
}

func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
