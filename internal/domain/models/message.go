// internal/domain/models/message.go
package models

import (
	"time"
)

// Message types. A message carries exactly one payload: Text for
// MessageTypeText, MediaURL for MessageTypeGif.
const (
	MessageTypeText = "text"
	MessageTypeGif  = "gif"
)

// Message is a single chat message in an activity room.
//
// Messages are immutable and append-only: this system never updates or
// deletes a message document. CreatedAt is assigned by the store at
// write time (never by the sending client), so delivery order within a
// room is consistent with CreatedAt order.
type Message struct {
	// ID is assigned by the store layer after decoding, same as
	// Activity.ID.
	ID         string    `bson:"-" json:"id"`
	RoomID     string    `bson:"room_id" json:"room_id"`
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	SenderName string    `bson:"sender_name" json:"sender_name"`
	Type       string    `bson:"type" json:"type"`
	Text       string    `bson:"text,omitempty" json:"text,omitempty"`
	MediaURL   string    `bson:"media_url,omitempty" json:"media_url,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}
