// internal/app/store/live/contract.go

// Package live defines the contract this application requires from its
// backing store and provides the Broker that manages live query
// subscriptions against it.
//
// The store is expected to behave like a document database with live
// queries: writes are acknowledged after submission without waiting for
// propagation to observers, set-valued fields support commutative
// merges, deletes are idempotent, and a live query pushes incremental
// change batches to the caller as documents are added, modified, or
// removed.
package live

import (
	"context"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Backend is the set of operations this application needs from a
// backing store. The production implementation is mongostore; tests use
// the in-memory fake in internal/testutil.
type Backend interface {
	// Append creates a new document in the collection. The store assigns
	// the created_at timestamp from its own clock (never the caller's)
	// and returns the generated document id.
	Append(ctx context.Context, collection string, fields bson.M) (string, error)

	// MergeUpdate applies a field-level merge: only the supplied fields
	// are written, unrelated fields on the document are untouched.
	MergeUpdate(ctx context.Context, collection, id string, fields bson.M) error

	// AddToSet adds value to the named set-valued field. Adding a value
	// already present is a no-op. Concurrent AddToSet/PullFromSet calls
	// on the same field commute.
	AddToSet(ctx context.Context, collection, id, field, value string) error

	// PullFromSet removes value from the named set-valued field.
	// Removing an absent value is a no-op.
	PullFromSet(ctx context.Context, collection, id, field, value string) error

	// Delete removes the document. Deleting an absent document is a
	// success, not an error, so concurrent deleters race harmlessly.
	Delete(ctx context.Context, collection, id string) error

	// GetOnce reads a single document into out. Returns ErrNotFound if
	// the document does not exist.
	GetOnce(ctx context.Context, collection, id string, out any) error

	// Watch opens a live query. The returned stream first delivers the
	// current result set as one Added batch, then incremental changes.
	// A stream is restartable (a new Watch re-snapshots) but not
	// resumable mid-stream.
	Watch(ctx context.Context, q Query) (Stream, error)
}

// Stream is a live query in progress. Next blocks until a batch is
// available or the stream fails; Close releases the underlying cursor.
type Stream interface {
	Next(ctx context.Context) (Batch, error)
	Close(ctx context.Context) error
}

// Query describes a live query: a collection, equality filters, and an
// ordering on a store-assigned timestamp field.
type Query struct {
	Collection string
	Filter     map[string]string
	OrderBy    string
	Descending bool
}

// Signature returns a canonical string for the query, used by the
// Broker to share one underlying listener between identical queries.
func (q Query) Signature() string {
	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(q.Collection)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q.Filter[k])
	}
	b.WriteByte('|')
	b.WriteString(q.OrderBy)
	if q.Descending {
		b.WriteString(" desc")
	} else {
		b.WriteString(" asc")
	}
	return b.String()
}

// ChangeKind classifies a document change within a batch.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

// String returns the lowercase name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one document change. Doc is empty for Removed changes.
type Change struct {
	Kind ChangeKind
	ID   string
	Doc  bson.Raw
}

// Decode unmarshals the changed document into out.
func (c Change) Decode(out any) error {
	return bson.Unmarshal(c.Doc, out)
}

// Batch is an ordered group of changes delivered together. Within one
// collection the store reports changes in write order, which for an
// append-only collection is also timestamp order.
type Batch struct {
	Changes []Change
}
