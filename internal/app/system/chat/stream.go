// internal/app/system/chat/stream.go

// Package chat is the per-room message log: validated sends and live,
// ordered subscriptions.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/domain/models"
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// ValidationError reports a send rejected before any store call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: %s %s", e.Field, e.Reason)
}

// Payload is the message body: exactly one of Text or MediaURL must be
// set. MediaURL is stored as an opaque string and never interpreted.
type Payload struct {
	Text     string
	MediaURL string
}

// Stream sends messages to rooms and opens live, ordered subscriptions
// over them.
type Stream struct {
	backend  live.Backend
	broker   *live.Broker
	log      *zap.Logger
	sanitize *bluemonday.Policy
}

// New creates a Stream.
func New(backend live.Backend, broker *live.Broker, logger *zap.Logger) *Stream {
	return &Stream{
		backend: backend,
		broker:  broker,
		log:     logger,
		// Messages are plain text; strip all markup before store.
		sanitize: bluemonday.StrictPolicy(),
	}
}

// Send appends a message to the room's log and returns the generated
// id. The store assigns created_at from its own clock, so messages from
// clients with skewed clocks still order correctly within the room.
//
// Send returns after the append is acknowledged; it does not wait for
// propagation to subscribers.
func (s *Stream) Send(ctx context.Context, roomID string, sender models.Identity, p Payload) (string, error) {
	if roomID == "" {
		return "", &ValidationError{Field: "room_id", Reason: "is required"}
	}

	text := strings.TrimSpace(p.Text)
	media := strings.TrimSpace(p.MediaURL)
	switch {
	case text == "" && media == "":
		return "", &ValidationError{Field: "payload", Reason: "requires text or media_url"}
	case text != "" && media != "":
		return "", &ValidationError{Field: "payload", Reason: "allows only one of text and media_url"}
	}

	fields := bson.M{
		"room_id":     roomID,
		"sender_id":   sender.UID,
		"sender_name": sender.DisplayName,
	}
	if text != "" {
		fields["type"] = models.MessageTypeText
		fields["text"] = s.sanitize.Sanitize(text)
	} else {
		fields["type"] = models.MessageTypeGif
		fields["media_url"] = media
	}

	id, err := s.backend.Append(ctx, mongostore.CollMessages, fields)
	if err != nil {
		return "", err
	}
	s.log.Debug("message sent",
		zap.String("room_id", roomID),
		zap.String("message_id", id),
		zap.String("sender_id", sender.UID))
	return id, nil
}

// Subscribe opens a live query over the room's messages ordered by
// created_at ascending. onBatch receives newly added messages strictly
// in store arrival order, which for an append-only log matches
// created_at order. onError (optional) receives the single terminal
// failure if the subscription dies.
func (s *Stream) Subscribe(roomID string, onBatch func([]models.Message), onError func(error)) (*live.Subscription, error) {
	if roomID == "" {
		return nil, &ValidationError{Field: "room_id", Reason: "is required"}
	}

	q := live.Query{
		Collection: mongostore.CollMessages,
		Filter:     map[string]string{"room_id": roomID},
		OrderBy:    "created_at",
	}
	return s.broker.Subscribe(q, func(batch live.Batch) {
		msgs := make([]models.Message, 0, len(batch.Changes))
		for _, ch := range batch.Changes {
			// Messages are append-only; this domain produces no
			// modifies or removes.
			if ch.Kind != live.Added {
				continue
			}
			var m models.Message
			if err := ch.Decode(&m); err != nil {
				s.log.Warn("undecodable message change",
					zap.String("id", ch.ID),
					zap.Error(err))
				continue
			}
			m.ID = ch.ID
			msgs = append(msgs, m)
		}
		if len(msgs) > 0 {
			onBatch(msgs)
		}
	}, onError)
}

// RoomTitle looks up the activity title for the chat header. Absent
// rooms fall back to a generic title, matching a room swept while the
// chat was open.
func (s *Stream) RoomTitle(ctx context.Context, roomID string) string {
	var a models.Activity
	if err := s.backend.GetOnce(ctx, mongostore.CollActivities, roomID, &a); err != nil || a.Title == "" {
		return "Huddle Chat"
	}
	return a.Title
}
