// internal/domain/models/activity.go
package models

import (
	"time"
)

// Activity represents a time-bounded chat room.
//
// NOTE:
//   - Participants are embedded on the activity document as a set of
//     user ids and are mutated only through commutative merge writes
//     ($addToSet / $pull), never by whole-document replacement.
//   - An activity whose EndTime has passed is expired; expired
//     activities are swept (deleted) cooperatively by any observer and
//     never mutated afterwards.
type Activity struct {
	// ID is the document id hex, assigned by the store layer after
	// decoding (the raw _id is an ObjectID and is not decoded here).
	ID          string    `bson:"-" json:"id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	CreatorID   string    `bson:"creator_id" json:"creator_id"`
	CreatorName string    `bson:"creator_name" json:"creator_name"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	EndTime     time.Time `bson:"end_time" json:"end_time"`

	// MaxParticipants is nil for unbounded rooms. The cap is advisory:
	// joins are not atomically checked against it (see membership).
	MaxParticipants *int `bson:"max_participants,omitempty" json:"max_participants,omitempty"`

	Participants ParticipantSet `bson:"participants" json:"participants"`
}

// Expired reports whether the activity's end time is strictly before now.
func (a Activity) Expired(now time.Time) bool {
	return a.EndTime.Before(now)
}

// Full reports whether the participant count has reached the cap.
// Always false for unbounded rooms.
func (a Activity) Full() bool {
	return a.MaxParticipants != nil && a.Participants.Count() >= *a.MaxParticipants
}
