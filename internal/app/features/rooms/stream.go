// internal/app/features/rooms/stream.go
package rooms

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/app/system/auth"
	"github.com/dalemusser/huddle/internal/domain/models"
)

// ServeStream handles GET /rooms/stream. It holds the connection open
// and pushes the full room list as a server-sent event whenever the
// registry's view changes. The first event carries the current list, so
// clients render immediately without a separate fetch.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Buffered with latest-wins semantics: the registry callback must
	// never block while the client socket is slow, so a pending
	// snapshot is dropped in favor of the newer one.
	updates := make(chan []models.Activity, 1)
	cancel := h.Registry.Listen(func(rooms []models.Activity) {
		select {
		case updates <- rooms:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- rooms:
			default:
			}
		}
	})
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rooms := <-updates:
			payload, err := json.Marshal(toViews(rooms, user.UID))
			if err != nil {
				h.Log.Warn("failed to encode room snapshot", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: rooms\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
