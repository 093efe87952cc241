// internal/app/features/chat/routes.go
package chat

import (
	"github.com/dalemusser/huddle/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the router for chat endpoints.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	// Require user to be signed in
	r.Use(sm.RequireSignedIn)

	r.Get("/{roomID}", h.ServeRoom)
	r.Get("/{roomID}/messages/stream", h.ServeStream)
	r.Post("/{roomID}/messages", h.ServeSend)

	return r
}
