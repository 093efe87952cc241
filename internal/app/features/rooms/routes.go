// internal/app/features/rooms/routes.go
package rooms

import (
	"github.com/dalemusser/huddle/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for room endpoints.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	// Require user to be signed in
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Get("/stream", h.ServeStream)
	r.Post("/", h.ServeCreate)
	r.Post("/{roomID}/join", h.ServeJoin)
	r.Post("/{roomID}/leave", h.ServeLeave)

	return r
}
