package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/dalemusser/huddle/internal/app/store/live"
)

// FakeBackend is an in-memory live.Backend. It mirrors the semantics
// the Mongo-backed store provides:
//
//   - Append assigns ids and a server-side created_at from a monotonic
//     fake clock, so insertion order and timestamp order agree.
//   - AddToSet / PullFromSet are commutative set merges; writes that
//     change nothing emit no change events, matching change streams.
//   - Delete of an absent document succeeds.
//   - Watch delivers the current matching documents as one snapshot
//     batch, then live changes as they happen.
type FakeBackend struct {
	mu      sync.Mutex
	seq     int
	clock   time.Time
	colls   map[string]map[string]bson.M
	streams []*fakeStream

	// WatchErr, when set, is returned by every Watch call. Use
	// SetWatchErr to toggle it mid-test.
	watchErr error
}

// NewFakeBackend returns an empty backend with the clock at a fixed
// point so timestamps are reproducible.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		colls: make(map[string]map[string]bson.M),
	}
}

var _ live.Backend = (*FakeBackend)(nil)

// SetWatchErr makes subsequent Watch calls fail with err (nil clears).
func (f *FakeBackend) SetWatchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchErr = err
}

// BreakStreams makes every open stream's next read fail with err, as a
// dropped change stream would. Reconnection behavior is then up to the
// consumer.
func (f *FakeBackend) BreakStreams(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.streams {
		if s.closed {
			continue
		}
		select {
		case s.errCh <- err:
		default:
		}
	}
}

// OpenStreams reports how many live streams are currently open. Lets
// tests assert that identical queries share one stream.
func (f *FakeBackend) OpenStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// Advance moves the fake server clock forward. Documents written after
// Advance get later created_at values.
func (f *FakeBackend) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(d)
}

// Now returns the current fake server clock.
func (f *FakeBackend) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

func (f *FakeBackend) tick() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

func (f *FakeBackend) coll(name string) map[string]bson.M {
	c, ok := f.colls[name]
	if !ok {
		c = make(map[string]bson.M)
		f.colls[name] = c
	}
	return c
}

func copyDoc(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		switch vv := v.(type) {
		case []string:
			v = append([]string(nil), vv...)
		case bson.A:
			v = append(bson.A(nil), vv...)
		}
		out[k] = v
	}
	return out
}

// stringSet normalizes the representations a set-valued field can
// arrive in ([]string from tests, bson.A from production write paths).
func stringSet(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case bson.A:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Append inserts a new document and returns its id.
func (f *FakeBackend) Append(ctx context.Context, collection string, fields bson.M) (string, error) {
	f.mu.Lock()
	f.seq++
	id := fmt.Sprintf("doc-%04d", f.seq)
	doc := copyDoc(fields)
	doc["created_at"] = f.tick()
	f.coll(collection)[id] = doc
	f.notifyLocked(collection, live.Added, id, doc)
	f.mu.Unlock()
	return id, nil
}

// MergeUpdate merges fields into an existing document. Like an
// un-upserted UpdateOne, a missing document is a no-op.
func (f *FakeBackend) MergeUpdate(ctx context.Context, collection, id string, fields bson.M) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.coll(collection)[id]
	if !ok {
		return nil
	}
	for k, v := range fields {
		doc[k] = v
	}
	f.notifyLocked(collection, live.Modified, id, doc)
	return nil
}

// AddToSet adds value to the named string-set field.
func (f *FakeBackend) AddToSet(ctx context.Context, collection, id, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.coll(collection)[id]
	if !ok {
		return nil
	}
	set := stringSet(doc[field])
	for _, v := range set {
		if v == value {
			return nil
		}
	}
	doc[field] = append(append([]string(nil), set...), value)
	f.notifyLocked(collection, live.Modified, id, doc)
	return nil
}

// PullFromSet removes value from the named string-set field.
func (f *FakeBackend) PullFromSet(ctx context.Context, collection, id, field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.coll(collection)[id]
	if !ok {
		return nil
	}
	set := stringSet(doc[field])
	kept := make([]string, 0, len(set))
	for _, v := range set {
		if v != value {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(set) {
		return nil
	}
	doc[field] = kept
	f.notifyLocked(collection, live.Modified, id, doc)
	return nil
}

// Delete removes a document. Deleting an absent document succeeds.
func (f *FakeBackend) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.coll(collection)[id]; !ok {
		return nil
	}
	delete(f.coll(collection), id)
	f.notifyLocked(collection, live.Removed, id, bson.M{})
	return nil
}

// GetOnce reads a single document into out.
func (f *FakeBackend) GetOnce(ctx context.Context, collection, id string, out any) error {
	f.mu.Lock()
	doc, ok := f.coll(collection)[id]
	if ok {
		doc = copyDoc(doc)
	}
	f.mu.Unlock()
	if !ok {
		return live.ErrNotFound
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

// Watch opens a live stream for the query.
func (f *FakeBackend) Watch(ctx context.Context, q live.Query) (live.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}

	snapshot := f.snapshotLocked(q)
	s := &fakeStream{
		backend:  f,
		query:    q,
		snapshot: snapshot,
		ch:       make(chan live.Batch, 64),
		errCh:    make(chan error, 1),
	}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *FakeBackend) snapshotLocked(q live.Query) live.Batch {
	type entry struct {
		id  string
		doc bson.M
	}
	var entries []entry
	for id, doc := range f.coll(q.Collection) {
		if matches(doc, q.Filter) {
			entries = append(entries, entry{id, doc})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, _ := entries[i].doc[q.OrderBy].(time.Time)
		tj, _ := entries[j].doc[q.OrderBy].(time.Time)
		if q.Descending {
			return tj.Before(ti)
		}
		return ti.Before(tj)
	})

	var b live.Batch
	for _, e := range entries {
		raw, err := bson.Marshal(e.doc)
		if err != nil {
			continue
		}
		b.Changes = append(b.Changes, live.Change{
			Kind: live.Added,
			ID:   e.id,
			Doc:  raw,
		})
	}
	return b
}

func matches(doc bson.M, filter map[string]string) bool {
	for k, want := range filter {
		got, _ := doc[k].(string)
		if got != want {
			return false
		}
	}
	return true
}

// notifyLocked fans a change out to open streams. Removed changes pass
// every filter on the collection, matching the Mongo store where delete
// events carry no document to filter on.
func (f *FakeBackend) notifyLocked(collection string, kind live.ChangeKind, id string, doc bson.M) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return
	}
	ch := live.Change{Kind: kind, ID: id, Doc: raw}
	for _, s := range f.streams {
		if s.closed || s.query.Collection != collection {
			continue
		}
		if kind != live.Removed && !matches(doc, s.query.Filter) {
			continue
		}
		select {
		case s.ch <- live.Batch{Changes: []live.Change{ch}}:
		default:
		}
	}
}

func (f *FakeBackend) dropStream(s *fakeStream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.streams {
		if cur == s {
			f.streams = append(f.streams[:i], f.streams[i+1:]...)
			break
		}
	}
}

type fakeStream struct {
	backend   *FakeBackend
	query     live.Query
	snapshot  live.Batch
	delivered bool
	closed    bool
	ch        chan live.Batch
	errCh     chan error
}

func (s *fakeStream) Next(ctx context.Context) (live.Batch, error) {
	if !s.delivered {
		s.delivered = true
		return s.snapshot, nil
	}
	select {
	case <-ctx.Done():
		return live.Batch{}, ctx.Err()
	case err := <-s.errCh:
		return live.Batch{}, err
	case b, ok := <-s.ch:
		if !ok {
			return live.Batch{}, live.ErrSubscriptionClosed
		}
		return b, nil
	}
}

func (s *fakeStream) Close(ctx context.Context) error {
	s.backend.mu.Lock()
	if s.closed {
		s.backend.mu.Unlock()
		return nil
	}
	s.closed = true
	s.backend.mu.Unlock()
	s.backend.dropStream(s)
	return nil
}
