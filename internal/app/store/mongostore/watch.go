// internal/app/store/mongostore/watch.go
package mongostore

import (
	"context"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Watch opens a live query: an initial snapshot of the current result
// set (one Added batch) followed by incremental changes from a change
// stream. Change streams require a replica set, which is also what
// provides the single server clock for created_at ordering.
func (s *Store) Watch(ctx context.Context, q live.Query) (live.Stream, error) {
	coll := s.db.Collection(q.Collection)

	filter := bson.M{}
	for k, v := range q.Filter {
		filter[k] = v
	}

	// Open the change stream before taking the snapshot so no write
	// falls between them. A write present in both shows up as an Added
	// followed by a duplicate change; delivery is at-least-once and
	// consumers upsert by id.
	cs, err := coll.Watch(ctx, changePipeline(q), options.ChangeStream().
		SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, err
	}

	order := 1
	if q.Descending {
		order = -1
	}
	findOpts := options.Find()
	if q.OrderBy != "" {
		findOpts.SetSort(bson.D{{Key: q.OrderBy, Value: order}})
	}
	cur, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		_ = cs.Close(ctx)
		return nil, err
	}

	var snapshot []live.Change
	for cur.Next(ctx) {
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)
		id, err := rawID(raw)
		if err != nil {
			continue
		}
		snapshot = append(snapshot, live.Change{Kind: live.Added, ID: id, Doc: raw})
	}
	if err := cur.Err(); err != nil {
		_ = cur.Close(ctx)
		_ = cs.Close(ctx)
		return nil, err
	}
	_ = cur.Close(ctx)

	s.log.Debug("live query opened",
		zap.String("query", q.Signature()),
		zap.Int("snapshot_size", len(snapshot)))

	return &stream{
		cs:       cs,
		snapshot: live.Batch{Changes: snapshot},
	}, nil
}

// changePipeline matches the operations a live query cares about.
// Filter fields are matched on the full document; delete events carry
// no full document, so they always pass and consumers drop removes for
// ids they never saw.
func changePipeline(q live.Query) mongo.Pipeline {
	ops := bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}}}
	if len(q.Filter) == 0 {
		return mongo.Pipeline{{{Key: "$match", Value: ops}}}
	}

	docMatch := bson.M{}
	for k, v := range q.Filter {
		docMatch["fullDocument."+k] = v
	}
	match := bson.M{
		"$and": bson.A{
			ops,
			bson.M{"$or": bson.A{
				bson.M{"operationType": "delete"},
				docMatch,
			}},
		},
	}
	return mongo.Pipeline{{{Key: "$match", Value: match}}}
}

// changeEvent is the subset of a change stream event this store reads.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw `bson:"fullDocument"`
}

// stream adapts a change stream plus its initial snapshot to
// live.Stream. The snapshot is handed out on the first Next call.
type stream struct {
	cs        *mongo.ChangeStream
	snapshot  live.Batch
	delivered bool
}

func (st *stream) Next(ctx context.Context) (live.Batch, error) {
	if !st.delivered {
		st.delivered = true
		return st.snapshot, nil
	}

	if !st.cs.Next(ctx) {
		if err := st.cs.Err(); err != nil {
			return live.Batch{}, err
		}
		return live.Batch{}, context.Canceled
	}

	var ev changeEvent
	if err := st.cs.Decode(&ev); err != nil {
		return live.Batch{}, err
	}

	ch := live.Change{ID: ev.DocumentKey.ID.Hex()}
	switch ev.OperationType {
	case "insert":
		ch.Kind = live.Added
		ch.Doc = ev.FullDocument
	case "delete":
		ch.Kind = live.Removed
	default:
		ch.Kind = live.Modified
		ch.Doc = ev.FullDocument
	}
	return live.Batch{Changes: []live.Change{ch}}, nil
}

func (st *stream) Close(ctx context.Context) error {
	return st.cs.Close(ctx)
}

// rawID extracts the hex document id from a raw document.
func rawID(doc bson.Raw) (string, error) {
	var key struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := bson.Unmarshal(doc, &key); err != nil {
		return "", err
	}
	return key.ID.Hex(), nil
}
