// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// Routes returns the router for session endpoints.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.ServeLogin)
	r.Post("/logout", h.ServeLogout)
	r.Get("/me", h.ServeMe)
	return r
}
