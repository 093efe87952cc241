// internal/app/system/rooms/sweeper.go
package rooms

import (
	"context"
	"time"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/domain/models"
	"go.uber.org/zap"
)

// Sweeper deletes activities whose end time has passed.
//
// Sweeping is cooperative: every registry runs the sweep on every
// refresh, nobody owns it exclusively, and correctness rests on the
// store's delete idempotence rather than on coordination. Deletes are
// fire-and-forget; the expired room is dropped from the caller's view
// immediately, without waiting for confirmation.
type Sweeper struct {
	backend live.Backend
	log     *zap.Logger

	// DeleteTimeout bounds each background delete request.
	DeleteTimeout time.Duration
}

// NewSweeper creates a Sweeper over the given backend.
func NewSweeper(backend live.Backend, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		backend:       backend,
		log:           logger,
		DeleteTimeout: 10 * time.Second,
	}
}

// Sweep returns the ids of activities expired as of now, and issues a
// background delete for each. Losing a delete race to another observer
// is expected and harmless: the store treats deleting an absent
// document as success.
func (s *Sweeper) Sweep(now time.Time, activities []models.Activity) []string {
	var expired []string
	for _, a := range activities {
		if !a.Expired(now) {
			continue
		}
		expired = append(expired, a.ID)

		go func(id, title string) {
			ctx, cancel := context.WithTimeout(context.Background(), s.DeleteTimeout)
			defer cancel()
			if err := s.backend.Delete(ctx, mongostore.CollActivities, id); err != nil {
				// The room is already gone from our view; the next
				// refresh or another observer retries the delete.
				s.log.Warn("expired room delete failed",
					zap.String("room_id", id),
					zap.Error(err))
				return
			}
			s.log.Info("swept expired room",
				zap.String("room_id", id),
				zap.String("title", title))
		}(a.ID, a.Title)
	}
	return expired
}
