// internal/app/store/mongostore/indexes.go
package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by this application.
const (
	CollActivities = "activities"
	CollMessages   = "messages"
)

// EnsureIndexes creates the indexes the live queries and sweeps rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	// Room listing is newest-first; sweeps scan by end_time.
	activityIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_activities_created"),
		},
		{
			Keys:    bson.D{{Key: "end_time", Value: 1}},
			Options: options.Index().SetName("idx_activities_end"),
		},
	}
	if _, err := s.db.Collection(CollActivities).Indexes().CreateMany(ctx, activityIndexes); err != nil {
		return err
	}

	// Messages are always read per room in timestamp order.
	messageIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_messages_room_created"),
		},
	}
	_, err := s.db.Collection(CollMessages).Indexes().CreateMany(ctx, messageIndexes)
	return err
}
