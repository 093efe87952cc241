// internal/app/features/gifs/handler.go
package gifs

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/app/system/giphy"
	"github.com/dalemusser/huddle/internal/app/system/timeouts"
)

// Handler serves the GIF search endpoint backing the chat GIF picker.
type Handler struct {
	Giphy *giphy.Client
	Log   *zap.Logger
}

// NewHandler creates a new gifs handler.
func NewHandler(client *giphy.Client, logger *zap.Logger) *Handler {
	return &Handler{
		Giphy: client,
		Log:   logger,
	}
}

// searchResponse is the JSON shape for GIF search results.
type searchResponse struct {
	Enabled bool        `json:"enabled"`
	Gifs    []giphy.Gif `json:"gifs"`
}

// ServeSearch handles GET /gifs/search?q=. When no Giphy key is
// configured the endpoint reports the picker as disabled instead of
// failing, so clients can hide the control.
func (h *Handler) ServeSearch(w http.ResponseWriter, r *http.Request) {
	resp := searchResponse{Enabled: h.Giphy.Enabled(), Gifs: []giphy.Gif{}}

	if resp.Enabled {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
		defer cancel()

		gifs, err := h.Giphy.Search(ctx, r.URL.Query().Get("q"))
		if err != nil {
			h.Log.Warn("gif search failed", zap.Error(err))
			http.Error(w, "gif search failed", http.StatusBadGateway)
			return
		}
		resp.Gifs = gifs
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
