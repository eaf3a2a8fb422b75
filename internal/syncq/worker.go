package syncq

import (
	"context"
	"errors"
	"time"

	"github.com/0Reliance/maeple/internal/logging"
)

// Worker periodically drains the queue. It runs until its context is
// cancelled; each pass purges stale entries and then drains whatever is
// pending. Connectivity probing is left to the applier: an offline provider
// simply fails the first entry and the pass moves on.
type Worker struct {
	queue    *Queue
	interval time.Duration
}

// NewWorker creates a worker that drains every interval. A non-positive
// interval defaults to 30 seconds.
func NewWorker(queue *Queue, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{queue: queue, interval: interval}
}

// Run blocks until ctx is cancelled. The first drain happens immediately so
// a restart with a backlog does not wait out a full interval.
func (w *Worker) Run(ctx context.Context) error {
	logging.Sync("Sync worker started (interval %v)", w.interval)

	w.pass(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Sync("Sync worker stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	report, err := w.queue.Drain(ctx)
	switch {
	case err == nil:
		if len(report.Succeeded) > 0 || len(report.Failed) > 0 || report.Evicted > 0 {
			logging.Sync("Drain pass: synced=%d failed=%d evicted=%d",
				len(report.Succeeded), len(report.Failed), report.Evicted)
		}
	case errors.Is(err, ErrDrainInProgress):
		logging.SyncDebug("Drain already in progress; skipping pass")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Shutdown mid-pass; the loop exits on the next select.
	default:
		logging.Get(logging.CategorySync).Error("Drain pass failed: %v", err)
	}
}
