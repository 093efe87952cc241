// internal/app/store/live/broker.go
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broker owns the live query listeners against the backing store.
//
// Subscriptions are deduplicated by query signature: the first
// Subscribe for a signature opens a store listener, later ones attach
// to it and receive the same batches. Transient listener failures are
// retried internally with capped exponential backoff and never reach
// the callbacks; a persistent failure (retries exhausted or a
// non-retryable error) is surfaced exactly once per subscriber, after
// which the subscription is Closed.
type Broker struct {
	backend Backend
	log     *zap.Logger
	backoff Backoff

	mu        sync.Mutex
	listeners map[string]*listener
	closed    bool
}

// NewBroker creates a Broker over the given backend. A zero-valued
// backoff selects DefaultBackoff.
func NewBroker(backend Backend, bo Backoff, logger *zap.Logger) *Broker {
	if bo == (Backoff{}) {
		bo = DefaultBackoff
	}
	return &Broker{
		backend:   backend,
		log:       logger,
		backoff:   bo,
		listeners: make(map[string]*listener),
	}
}

// Subscribe attaches to the live query q. onBatch receives ordered
// change batches; onError (optional) receives the single terminal
// failure if the subscription dies. If an identical query is already
// being watched, the existing listener is reused.
//
// Subscribe returns immediately; delivery is asynchronous and push
// based. Release the subscription with Unsubscribe.
func (b *Broker) Subscribe(q Query, onBatch func(Batch), onError func(error)) (*Subscription, error) {
	sub := &Subscription{
		id:      uuid.NewString(),
		query:   q,
		onBatch: onBatch,
		onError: onError,
	}
	sub.state.Store(int32(StateOpening))

	sig := q.Signature()
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrSubscriptionClosed
		}
		l, ok := b.listeners[sig]
		if !ok {
			// Attach before starting so the first subscriber cannot
			// miss the initial snapshot.
			l = newListener(b, sig, q)
			b.listeners[sig] = l
			l.attach(sub)
			l.start()
			b.mu.Unlock()
			return sub, nil
		}
		b.mu.Unlock()

		// attach can lose a race with the listener retiring (its last
		// subscriber just detached, or it failed); drop the dead entry
		// and loop for a fresh one.
		if l.attach(sub) {
			// The shared stream is already past its snapshot, so ask
			// the listener to reopen. The re-snapshot reaches every
			// attached subscriber; delivery is at-least-once and
			// consumers reconcile by document id.
			l.requestRefresh()
			return sub, nil
		}
		b.mu.Lock()
		if cur, ok := b.listeners[sig]; ok && cur == l {
			delete(b.listeners, sig)
		}
		b.mu.Unlock()
	}
}

// Close tears down every listener and closes all subscriptions without
// surfacing errors to them. The broker is unusable afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	ls := make([]*listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		ls = append(ls, l)
	}
	b.listeners = make(map[string]*listener)
	b.mu.Unlock()

	for _, l := range ls {
		l.stop()
		for _, s := range l.snapshot() {
			s.state.Store(int32(StateClosed))
		}
	}
}

// drop removes a listener whose last subscriber detached.
func (b *Broker) drop(l *listener) {
	b.mu.Lock()
	if cur, ok := b.listeners[l.signature]; ok && cur == l {
		delete(b.listeners, l.signature)
	}
	b.mu.Unlock()
	l.stop()
}

// listener is the single store watch for one query signature, fanning
// batches out to attached subscriptions.
type listener struct {
	broker    *Broker
	signature string
	query     Query

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	refreshCh chan struct{}

	mu   sync.Mutex
	subs map[string]*Subscription
	dead bool
}

func newListener(b *Broker, sig string, q Query) *listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &listener{
		broker:    b,
		signature: sig,
		query:     q,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
		subs:      make(map[string]*Subscription),
	}
}

// requestRefresh asks run to close and reopen the stream, which
// re-delivers the query snapshot. Coalesces concurrent requests.
func (l *listener) requestRefresh() {
	select {
	case l.refreshCh <- struct{}{}:
	default:
	}
}

func (l *listener) start() {
	go l.run()
}

func (l *listener) stop() {
	l.cancel()
	<-l.done
}

func (l *listener) attach(sub *Subscription) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dead {
		return false
	}
	sub.lst = l
	l.subs[sub.id] = sub
	return true
}

func (l *listener) detach(sub *Subscription) {
	l.mu.Lock()
	delete(l.subs, sub.id)
	empty := len(l.subs) == 0 && !l.dead
	if empty {
		l.dead = true
	}
	l.mu.Unlock()

	if empty {
		go l.broker.drop(l)
	}
}

func (l *listener) snapshot() []*Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Subscription, 0, len(l.subs))
	for _, s := range l.subs {
		out = append(out, s)
	}
	return out
}

func (l *listener) setAll(st State) {
	for _, s := range l.snapshot() {
		s.setState(st)
	}
}

func (l *listener) fanout(batch Batch) {
	for _, s := range l.snapshot() {
		s.deliver(batch)
	}
}

// failAll surfaces the terminal error to every subscriber and retires
// the listener.
func (l *listener) failAll(err error) {
	l.mu.Lock()
	l.dead = true
	subs := make([]*Subscription, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	l.subs = make(map[string]*Subscription)
	l.mu.Unlock()

	for _, s := range subs {
		s.fail(err)
	}

	l.broker.mu.Lock()
	if cur, ok := l.broker.listeners[l.signature]; ok && cur == l {
		delete(l.broker.listeners, l.signature)
	}
	l.broker.mu.Unlock()
}

// run opens the watch and pumps batches until the listener is stopped
// or fails persistently. Each reopen, whether after a transient failure
// or a refresh request, re-snapshots the query; the stream is
// restartable, not resumable.
func (l *listener) run() {
	defer close(l.done)

	attempt := 0
	for {
		if l.ctx.Err() != nil {
			return
		}

		stream, err := l.broker.backend.Watch(l.ctx, l.query)
		if err != nil {
			if l.retire(err, &attempt) {
				return
			}
			continue
		}

		attempt = 0
		l.setAll(StateActive)

		// A refresh request cancels just this stream's context so the
		// outer loop reopens immediately, without backoff.
		streamCtx, cancelStream := context.WithCancel(l.ctx)
		go func() {
			select {
			case <-l.refreshCh:
				cancelStream()
			case <-streamCtx.Done():
			}
		}()

		for {
			batch, err := stream.Next(streamCtx)
			if err != nil {
				_ = stream.Close(context.Background())
				// Refresh-cancelled streams reopen immediately; real
				// failures go through retire's backoff.
				if streamCtx.Err() == nil || l.ctx.Err() != nil {
					if l.retire(err, &attempt) {
						cancelStream()
						return
					}
				}
				break
			}
			l.fanout(batch)
		}
		cancelStream()
	}
}

// retire classifies a watch error. It returns true when the listener
// should stop: the context was cancelled, the error is non-retryable,
// or the retry budget is spent. Otherwise it sleeps the backoff delay
// and returns false so run reopens the watch.
func (l *listener) retire(err error, attempt *int) bool {
	if l.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	if IsPersistent(err) {
		l.broker.log.Error("live query failed",
			zap.String("query", l.signature),
			zap.Error(err))
		l.failAll(err)
		return true
	}

	*attempt++
	if l.broker.backoff.Exhausted(*attempt) {
		l.broker.log.Error("live query retries exhausted",
			zap.String("query", l.signature),
			zap.Int("attempts", *attempt-1),
			zap.Error(err))
		l.failAll(&PersistentError{Err: err})
		return true
	}

	delay := l.broker.backoff.Delay(*attempt)
	l.broker.log.Warn("live query interrupted, retrying",
		zap.String("query", l.signature),
		zap.Int("attempt", *attempt),
		zap.Duration("delay", delay),
		zap.Error(err))
	l.setAll(StateReconnecting)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-l.ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
