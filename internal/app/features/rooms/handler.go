// internal/app/features/rooms/handler.go
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/system/auth"
	"github.com/dalemusser/huddle/internal/app/system/membership"
	roomsys "github.com/dalemusser/huddle/internal/app/system/rooms"
	"github.com/dalemusser/huddle/internal/app/system/timeouts"
	"github.com/dalemusser/huddle/internal/domain/models"
)

// Handler serves the room listing, creation, and membership endpoints.
type Handler struct {
	Registry   *roomsys.Registry
	Membership *membership.Manager
	Backend    live.Backend
	Log        *zap.Logger
}

// NewHandler creates a new rooms handler.
func NewHandler(registry *roomsys.Registry, mgr *membership.Manager, backend live.Backend, logger *zap.Logger) *Handler {
	return &Handler{
		Registry:   registry,
		Membership: mgr,
		Backend:    backend,
		Log:        logger,
	}
}

// roomView is the JSON shape returned for a single room.
type roomView struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	CreatorID       string    `json:"creator_id"`
	CreatorName     string    `json:"creator_name"`
	CreatedAt       time.Time `json:"created_at"`
	EndTime         time.Time `json:"end_time"`
	MaxParticipants *int      `json:"max_participants,omitempty"`
	Participants    []string  `json:"participants"`
	Joined          bool      `json:"joined"`
}

func toView(a models.Activity, uid string) roomView {
	parts := a.Participants
	if parts == nil {
		parts = models.ParticipantSet{}
	}
	return roomView{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		CreatorID:       a.CreatorID,
		CreatorName:     a.CreatorName,
		CreatedAt:       a.CreatedAt,
		EndTime:         a.EndTime,
		MaxParticipants: a.MaxParticipants,
		Participants:    parts,
		Joined:          parts.Contains(uid),
	}
}

func toViews(activities []models.Activity, uid string) []roomView {
	views := make([]roomView, 0, len(activities))
	for _, a := range activities {
		views = append(views, toView(a, uid))
	}
	return views
}

// ServeList handles GET /rooms and returns the live room list, newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.CurrentUser(r)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toViews(h.Registry.Rooms(), user.UID)); err != nil {
		h.Log.Warn("failed to encode room list", zap.Error(err))
	}
}

// createRequest is the JSON body for the create-room endpoint.
type createRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	EndTime         time.Time `json:"end_time"`
	MaxParticipants *int      `json:"max_participants"`
}

// ServeCreate handles POST /rooms.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "sign in required", http.StatusUnauthorized)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	id, err := roomsys.Create(ctx, h.Backend, user, req.Title, req.Description, req.EndTime, req.MaxParticipants)
	if err != nil {
		switch {
		case errors.Is(err, roomsys.ErrEmptyTitle),
			errors.Is(err, roomsys.ErrEndTimePassed),
			errors.Is(err, roomsys.ErrBadCapacity):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.Log.Error("failed to create room", zap.Error(err), zap.String("uid", user.UID))
			http.Error(w, "failed to create room", http.StatusInternalServerError)
		}
		return
	}

	h.Log.Info("room created",
		zap.String("room_id", id),
		zap.String("creator_id", user.UID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// ServeJoin handles POST /rooms/{roomID}/join.
func (h *Handler) ServeJoin(w http.ResponseWriter, r *http.Request) {
	h.membershipChange(w, r, h.Membership.Join, "join")
}

// ServeLeave handles POST /rooms/{roomID}/leave.
func (h *Handler) ServeLeave(w http.ResponseWriter, r *http.Request) {
	h.membershipChange(w, r, h.Membership.Leave, "leave")
}

func (h *Handler) membershipChange(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) error, name string) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "sign in required", http.StatusUnauthorized)
		return
	}

	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := op(ctx, roomID, user.UID); err != nil {
		if errors.Is(err, live.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		h.Log.Error("membership change failed",
			zap.Error(err),
			zap.String("op", name),
			zap.String("room_id", roomID),
			zap.String("uid", user.UID))
		http.Error(w, "failed to update membership", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
