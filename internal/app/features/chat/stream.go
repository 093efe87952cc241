// internal/app/features/chat/stream.go
package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/domain/models"
)

// messagePump queues message batches from the subscription callback so
// the callback never blocks on a slow client socket. Unlike the room
// stream, message batches append rather than replace, so nothing may be
// dropped: batches accumulate under the mutex until the writer drains
// them, preserving arrival order.
type messagePump struct {
	mu      sync.Mutex
	pending []models.Message
	err     error
	wake    chan struct{}
}

func newMessagePump() *messagePump {
	return &messagePump{wake: make(chan struct{}, 1)}
}

func (p *messagePump) push(msgs []models.Message) {
	p.mu.Lock()
	p.pending = append(p.pending, msgs...)
	p.mu.Unlock()
	p.signal()
}

func (p *messagePump) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.signal()
}

func (p *messagePump) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *messagePump) drain() ([]models.Message, error) {
	p.mu.Lock()
	msgs := p.pending
	p.pending = nil
	err := p.err
	p.mu.Unlock()
	return msgs, err
}

// ServeStream handles GET /chat/{roomID}/messages/stream. It replays
// the room's history as the first events and then pushes each new
// message as it lands. Reconnects after transient store outages replay
// the snapshot again, so already-delivered message ids are skipped.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	pump := newMessagePump()
	sub, err := h.Stream.Subscribe(roomID, pump.push, pump.fail)
	if err != nil {
		h.Log.Error("failed to open message stream",
			zap.Error(err),
			zap.String("room_id", roomID))
		http.Error(w, "failed to open message stream", http.StatusInternalServerError)
		return
	}
	defer sub.Unsubscribe()

	seen := make(map[string]struct{})
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pump.wake:
		}

		msgs, failure := pump.drain()
		for _, m := range msgs {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}

			payload, err := json.Marshal(m)
			if err != nil {
				h.Log.Warn("failed to encode message", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\nid: %s\ndata: %s\n\n", m.ID, payload); err != nil {
				return
			}
		}
		flusher.Flush()

		if failure != nil {
			h.Log.Warn("message stream ended",
				zap.Error(failure),
				zap.String("room_id", roomID))
			fmt.Fprint(w, "event: error\ndata: stream closed\n\n")
			flusher.Flush()
			return
		}
	}
}
