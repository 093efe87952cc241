// internal/app/system/workers/expirysweep.go
package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweepable is the slice of the room registry this worker drives.
type Sweepable interface {
	SweepNow()
}

// ExpirySweep is a background worker that re-runs the registry's expiry
// sweep on an interval. The registry already sweeps on every store
// refresh; this worker covers rooms that expire while nothing is being
// written, so they still disappear on time.
type ExpirySweep struct {
	registry Sweepable
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewExpirySweep creates the worker. interval is how often to re-sweep
// (e.g. 30 seconds).
func NewExpirySweep(registry Sweepable, logger *zap.Logger, interval time.Duration) *ExpirySweep {
	return &ExpirySweep{
		registry: registry,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *ExpirySweep) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("expiry sweep worker started",
		zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *ExpirySweep) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("expiry sweep worker stopped")
}

func (w *ExpirySweep) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.registry.SweepNow()
		}
	}
}
