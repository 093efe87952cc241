// internal/app/store/mongostore/store.go

// Package mongostore implements the live.Backend contract on MongoDB.
//
// Mapping of the contract onto the driver:
//   - Append uses an upsert with $currentDate so mongod, not this
//     process, assigns created_at. One replica set means one ordering
//     clock no matter how many app instances write.
//   - AddToSet / PullFromSet map to $addToSet / $pull, which commute
//     with concurrent merges on the same array field.
//   - Delete maps to DeleteOne; a zero delete count is a success.
//   - Watch combines an initial Find snapshot with a change stream
//     (see watch.go), which is how a Firestore-style live query is
//     expressed against MongoDB.
package mongostore

import (
	"context"
	"errors"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Store is the MongoDB-backed implementation of live.Backend.
type Store struct {
	db  *mongo.Database
	log *zap.Logger
}

// New creates a Store over the given database.
func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{db: db, log: logger}
}

var _ live.Backend = (*Store)(nil)

// Append inserts a new document with a server-assigned created_at and
// returns its generated id.
func (s *Store) Append(ctx context.Context, collection string, fields bson.M) (string, error) {
	id := primitive.NewObjectID()

	update := bson.M{
		"$set":         fields,
		"$currentDate": bson.M{"created_at": true},
	}
	_, err := s.db.Collection(collection).UpdateOne(
		ctx,
		bson.M{"_id": id},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", err
	}
	return id.Hex(), nil
}

// MergeUpdate writes only the supplied fields, leaving the rest of the
// document untouched.
func (s *Store) MergeUpdate(ctx context.Context, collection, id string, fields bson.M) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": fields},
	)
	return err
}

// AddToSet adds value to the array field if not already present.
func (s *Store) AddToSet(ctx context.Context, collection, id, field, value string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$addToSet": bson.M{field: value}},
	)
	return err
}

// PullFromSet removes value from the array field if present.
func (s *Store) PullFromSet(ctx context.Context, collection, id, field, value string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$pull": bson.M{field: value}},
	)
	return err
}

// Delete removes the document. Absent documents are a success so that
// racing sweepers never see an error from losing the race.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

// GetOnce reads a single document into out.
func (s *Store) GetOnce(ctx context.Context, collection, id string, out any) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	err = s.db.Collection(collection).FindOne(ctx, bson.M{"_id": oid}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return live.ErrNotFound
	}
	return err
}

// objectID parses a hex document id. A malformed id is a caller bug
// and is reported as not-found rather than a store failure.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, live.ErrNotFound
	}
	return oid, nil
}
