// internal/app/features/gifs/routes.go
package gifs

import (
	"github.com/dalemusser/huddle/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for GIF search endpoints.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	// Require user to be signed in
	r.Use(sm.RequireSignedIn)

	r.Get("/search", h.ServeSearch)

	return r
}
