// internal/app/system/rooms/create.go
package rooms

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrEmptyTitle    = errors.New("activity title is required")
	ErrEndTimePassed = errors.New("activity end time must be in the future")
	ErrBadCapacity   = errors.New("max participants must be positive")
)

// Create writes a new activity and returns its id. The creator is the
// first participant. created_at is assigned by the store.
func Create(ctx context.Context, backend live.Backend, creator models.Identity,
	title, description string, endTime time.Time, maxParticipants *int) (string, error) {

	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	if !endTime.After(time.Now()) {
		return "", ErrEndTimePassed
	}
	if maxParticipants != nil && *maxParticipants < 1 {
		return "", ErrBadCapacity
	}

	fields := bson.M{
		"title":        title,
		"description":  strings.TrimSpace(description),
		"creator_id":   creator.UID,
		"creator_name": creator.DisplayName,
		"end_time":     endTime.UTC(),
		"participants": bson.A{creator.UID},
	}
	if maxParticipants != nil {
		fields["max_participants"] = *maxParticipants
	}

	return backend.Append(ctx, mongostore.CollActivities, fields)
}
