// internal/app/features/chat/handler.go
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/app/system/auth"
	chatsys "github.com/dalemusser/huddle/internal/app/system/chat"
	"github.com/dalemusser/huddle/internal/app/system/timeouts"
)

// Handler serves the in-room chat endpoints.
type Handler struct {
	Stream *chatsys.Stream
	Log    *zap.Logger
}

// NewHandler creates a new chat handler.
func NewHandler(stream *chatsys.Stream, logger *zap.Logger) *Handler {
	return &Handler{
		Stream: stream,
		Log:    logger,
	}
}

// ServeRoom handles GET /chat/{roomID} and returns the room header the
// chat view renders before any messages arrive.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"id":    roomID,
		"title": h.Stream.RoomTitle(ctx, roomID),
	})
}

// sendRequest is the JSON body for the send-message endpoint. Exactly
// one of text or media_url must be set.
type sendRequest struct {
	Text     string `json:"text"`
	MediaURL string `json:"media_url"`
}

// ServeSend handles POST /chat/{roomID}/messages.
func (h *Handler) ServeSend(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "sign in required", http.StatusUnauthorized)
		return
	}

	roomID := chi.URLParam(r, "roomID")

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	id, err := h.Stream.Send(ctx, roomID, user, chatsys.Payload{
		Text:     req.Text,
		MediaURL: req.MediaURL,
	})
	if err != nil {
		var verr *chatsys.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		h.Log.Error("failed to send message",
			zap.Error(err),
			zap.String("room_id", roomID),
			zap.String("uid", user.UID))
		http.Error(w, "failed to send message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}
