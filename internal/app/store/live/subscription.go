// internal/app/store/live/subscription.go
package live

import (
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a Subscription.
//
//	Opening → Active ⇄ Reconnecting → Closed
//
// Closed is terminal; a closed subscription never delivers again and
// cannot be reopened. Create a new subscription instead.
type State int32

const (
	StateOpening State = iota
	StateActive
	StateReconnecting
	StateClosed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscription is one caller's attachment to a live query. Several
// subscriptions with the same query signature share a single underlying
// store listener; each still has its own lifecycle and callbacks.
//
// The batch callback is invoked serially, in batch arrival order.
// Unsubscribe must not be called from inside the callbacks; call it
// from any other goroutine.
type Subscription struct {
	id    string
	query Query
	lst   *listener

	state atomic.Int32

	// mu gates every callback invocation. Unsubscribe acquires it, so a
	// delivery already in flight completes before Unsubscribe returns
	// and nothing is delivered afterwards.
	mu      sync.Mutex
	onBatch func(Batch)
	onError func(error)
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// Query returns the query this subscription observes.
func (s *Subscription) Query() Query { return s.query }

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Unsubscribe closes the subscription. It is synchronous with respect
// to the caller: once it returns, the subscription is Closed and no
// further batch or error callback will run, even for a batch that was
// already in flight. The underlying listener is torn down asynchronously
// once its last subscriber detaches. Unsubscribing twice is a no-op.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	already := s.State() == StateClosed
	s.state.Store(int32(StateClosed))
	s.mu.Unlock()

	if already {
		return
	}
	if s.lst != nil {
		s.lst.detach(s)
	}
}

// deliver invokes the batch callback unless the subscription is closed.
// The check and the call happen under mu, which is the synchronous-
// cancellation boundary.
func (s *Subscription) deliver(b Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateClosed {
		return
	}
	if s.onBatch != nil {
		s.onBatch(b)
	}
}

// fail surfaces a terminal error exactly once and closes the
// subscription. Nothing is delivered afterwards.
func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateClosed {
		return
	}
	s.state.Store(int32(StateClosed))
	if s.onError != nil {
		s.onError(err)
	}
}

// setState records a non-terminal state transition. Transitions on a
// closed subscription are ignored.
func (s *Subscription) setState(st State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}
