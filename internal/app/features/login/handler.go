// internal/app/features/login/handler.go
package login

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/app/system/auth"
	"github.com/dalemusser/huddle/internal/domain/models"
)

// Handler serves trust-based sign-in. There is no password: a visitor
// posts the display name they want to chat under and gets a session
// with a freshly minted user id. Identity here scopes membership and
// message attribution, it does not gate content.
type Handler struct {
	SessionMgr *auth.SessionManager
	Log        *zap.Logger
}

// NewHandler creates a new login handler.
func NewHandler(sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		SessionMgr: sessionMgr,
		Log:        logger,
	}
}

// loginRequest is the JSON body for the sign-in endpoint.
type loginRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// ServeLogin handles POST /login.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		http.Error(w, "display_name is required", http.StatusBadRequest)
		return
	}

	user := models.Identity{
		UID:         uuid.NewString(),
		DisplayName: name,
		Email:       strings.TrimSpace(req.Email),
	}

	// A visitor signing in again keeps their uid so existing room
	// memberships and message attribution still line up.
	if existing, ok := auth.CurrentUser(r); ok {
		user.UID = existing.UID
	}

	if err := h.SessionMgr.SignIn(w, r, user); err != nil {
		h.Log.Error("failed to save session", zap.Error(err))
		http.Error(w, "failed to sign in", http.StatusInternalServerError)
		return
	}

	h.Log.Info("user signed in",
		zap.String("uid", user.UID),
		zap.String("display_name", user.DisplayName))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// ServeLogout handles POST /logout.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Warn("failed to clear session", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeMe handles GET /me and reports the signed-in identity.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}
