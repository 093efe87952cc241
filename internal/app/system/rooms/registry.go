// internal/app/system/rooms/registry.go

// Package rooms maintains the live view of active (non-expired)
// activities and owns their expiry.
package rooms

import (
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/domain/models"
	"go.uber.org/zap"
)

// Registry is a continuously refreshed view of the activities
// collection. It owns one live subscription, applies change batches to
// a local upsert-by-id cache, and runs the expiry sweep after every
// refresh. Listings are therefore eventually consistent: an expired
// room may transiently appear to an already-open observer until the
// sweep lands, but never in a fresh listing after a refresh.
type Registry struct {
	backend live.Backend
	broker  *live.Broker
	sweeper *Sweeper
	log     *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	cache     map[string]models.Activity
	listeners map[int]*roomListener
	nextID    int
	seq       uint64

	sub *live.Subscription
}

// roomListener delivers snapshots to one callback in sequence order.
// Snapshots are dispatched outside the registry lock, so a sweep racing
// a store-driven refresh can reach the dispatch loop with a stale
// snapshot; the sequence check drops it.
type roomListener struct {
	mu   sync.Mutex
	last uint64
	cb   func([]models.Activity)
}

func (l *roomListener) deliver(seq uint64, rooms []models.Activity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq < l.last {
		return
	}
	l.last = seq
	l.cb(rooms)
}

// NewRegistry creates a Registry. Call Start to open the underlying
// subscription and Close to release it.
func NewRegistry(backend live.Backend, broker *live.Broker, logger *zap.Logger) *Registry {
	return &Registry{
		backend:   backend,
		broker:    broker,
		sweeper:   NewSweeper(backend, logger),
		log:       logger,
		now:       time.Now,
		cache:     make(map[string]models.Activity),
		listeners: make(map[int]*roomListener),
	}
}

// Start opens the live subscription on the activities collection.
// A registry that fails persistently logs the failure and keeps serving
// its last known view; callers construct a new Registry to resubscribe.
func (r *Registry) Start() error {
	q := live.Query{
		Collection: mongostore.CollActivities,
		OrderBy:    "created_at",
		Descending: true,
	}
	sub, err := r.broker.Subscribe(q, r.apply, func(err error) {
		r.log.Error("room registry subscription failed", zap.Error(err))
	})
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

// Close releases the registry's subscription.
func (r *Registry) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
}

// Rooms returns the current non-expired activities, newest first.
// The snapshot reflects the latest refresh; use Listen for a live
// sequence.
func (r *Registry) Rooms() []models.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

// Get returns a cached activity by id.
func (r *Registry) Get(id string) (models.Activity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.cache[id]
	return a, ok
}

// Listen registers cb to receive the full room list after every
// refresh, newest first. It fires once immediately with the current
// view. The returned cancel function unregisters the listener.
func (r *Registry) Listen(cb func([]models.Activity)) (cancel func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	l := &roomListener{cb: cb}
	r.listeners[id] = l
	seq := r.seq
	current := r.sortedLocked()
	r.mu.Unlock()

	l.deliver(seq, current)

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// SweepNow re-evaluates expiry against the current clock without
// waiting for store traffic. The periodic worker calls this so rooms
// expire even when nothing is being written.
func (r *Registry) SweepNow() {
	r.refresh(nil)
}

// apply is the subscription callback: fold one change batch into the
// cache, then sweep.
func (r *Registry) apply(batch live.Batch) {
	r.refresh(batch.Changes)
}

func (r *Registry) refresh(changes []live.Change) {
	r.mu.Lock()

	for _, ch := range changes {
		switch ch.Kind {
		case live.Added, live.Modified:
			var a models.Activity
			if err := ch.Decode(&a); err != nil {
				r.log.Warn("undecodable activity change",
					zap.String("id", ch.ID),
					zap.Error(err))
				continue
			}
			a.ID = ch.ID
			// Full replace of the cached record; merges have already
			// been folded into the store's version of the document.
			r.cache[ch.ID] = a
		case live.Removed:
			delete(r.cache, ch.ID)
		}
	}

	// Expiry sweep: expired rooms leave the cache immediately, without
	// waiting for the deletes to land.
	all := make([]models.Activity, 0, len(r.cache))
	for _, a := range r.cache {
		all = append(all, a)
	}
	for _, id := range r.sweeper.Sweep(r.now(), all) {
		delete(r.cache, id)
	}

	r.seq++
	seq := r.seq
	ls := make([]*roomListener, 0, len(r.listeners))
	for _, l := range r.listeners {
		ls = append(ls, l)
	}
	current := r.sortedLocked()
	r.mu.Unlock()

	for _, l := range ls {
		l.deliver(seq, current)
	}
}

func (r *Registry) sortedLocked() []models.Activity {
	out := make([]models.Activity, 0, len(r.cache))
	for _, a := range r.cache {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
