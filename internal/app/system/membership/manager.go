// internal/app/system/membership/manager.go

// Package membership applies join/leave mutations to an activity's
// participant set.
//
// Both operations are field-level merges that commute with concurrent
// merges from other callers and are individually idempotent, so any
// interleaving of joins and leaves converges to the same final set
// without locks or lost updates.
package membership

import (
	"context"
	"errors"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/domain/models"
	"go.uber.org/zap"
)

// ErrMissingArgument is returned when the activity or user id is empty.
var ErrMissingArgument = errors.New("activity id and user id are required")

const participantsField = "participants"

// Manager issues membership merges against the backing store.
type Manager struct {
	backend live.Backend
	log     *zap.Logger
}

// New creates a Manager.
func New(backend live.Backend, logger *zap.Logger) *Manager {
	return &Manager{backend: backend, log: logger}
}

// Join adds userID to the activity's participant set. Joining a room
// the user is already in is a no-op.
//
// The capacity check below is a plain read followed by a separate
// write: two near-simultaneous joins on a room with one remaining slot
// can both land, briefly putting the set over max_participants. That
// is an accepted relaxation: client-side locking could not actually
// prevent it. When an over/at-capacity join is observed it is logged
// and allowed through.
func (m *Manager) Join(ctx context.Context, activityID, userID string) error {
	if activityID == "" || userID == "" {
		return ErrMissingArgument
	}

	var a models.Activity
	switch err := m.backend.GetOnce(ctx, mongostore.CollActivities, activityID, &a); {
	case errors.Is(err, live.ErrNotFound):
		// Room swept between listing and join; the merge below is a
		// no-op on an absent document either way.
	case err != nil:
		return err
	case a.Full() && !a.Participants.Contains(userID):
		m.log.Warn("join on full room accepted",
			zap.String("activity_id", activityID),
			zap.String("user_id", userID),
			zap.Int("participants", a.Participants.Count()),
			zap.Intp("max_participants", a.MaxParticipants))
	}

	return m.backend.AddToSet(ctx, mongostore.CollActivities, activityID, participantsField, userID)
}

// Leave removes userID from the activity's participant set. Leaving a
// room the user is not in is a no-op, not an error.
func (m *Manager) Leave(ctx context.Context, activityID, userID string) error {
	if activityID == "" || userID == "" {
		return ErrMissingArgument
	}
	return m.backend.PullFromSet(ctx, mongostore.CollActivities, activityID, participantsField, userID)
}
