// internal/app/features/mapview/routes.go
package mapview

import (
	"github.com/dalemusser/pinmap/internal/app/system/auth"
	"github.com/dalemusser/pinmap/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes returns the map API router, mounted under /map. Browsing works
// signed out; edits require a session.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Get("/state", h.State)
	r.Post("/heartbeat", h.Heartbeat)
	r.Post("/tab/{tab}", h.SwitchTab)
	r.Post("/collections/select", h.SelectCollection)
	r.Post("/markers/{id}/click", h.ClickMarker)
	r.Post("/overlay/close", h.CloseOverlay)
	r.Post("/camera", h.MoveCamera)
	r.Post("/search/discard", h.DiscardCandidate)

	// These reach the place provider.
	r.Group(func(lr chi.Router) {
		if h.Lookups != nil {
			lr.Use(ratelimit.Middleware(h.Lookups, ratelimit.ClientIP))
		}
		lr.Post("/dblclick", h.DoubleClick)
		lr.Get("/search", h.Search)
		lr.Post("/search/{candidateID}/select", h.SelectCandidate)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Post("/load", h.Load)
		pr.Post("/search/save", h.SaveCandidate)
		pr.Post("/stats/refresh", h.RefreshStats)

		pr.Post("/pins", h.CreatePin)
		pr.Patch("/pins/{id}", h.UpdatePin)
		pr.Delete("/pins/{id}", h.DeletePin)

		pr.Post("/collections", h.CreateCollection)
		pr.Patch("/collections/{id}", h.UpdateCollection)
		pr.Delete("/collections/{id}", h.DeleteCollection)

		pr.Post("/uploads", h.BeginUpload)
		pr.Post("/uploads/{id}/complete", h.CompleteUpload)
		pr.Delete("/uploads/{id}", h.RemoveUpload)
	})

	return r
}
