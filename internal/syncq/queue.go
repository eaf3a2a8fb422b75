// Package syncq holds journal payloads that could not be synchronized while
// the provider or network was unavailable, and drains them in arrival order
// once connectivity returns. The queue is bounded, persisted, and evicts
// entries that sit unsynced for too long.
package syncq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0Reliance/maeple/internal/logging"
	"github.com/0Reliance/maeple/internal/storage"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity. The
// newest data loses: callers surface the failure to the user instead of
// silently displacing older entries.
var ErrQueueFull = storage.ErrQueueFull

// ErrDrainInProgress is returned when a drain is requested while another is
// running. It is benign; the running drain covers the same entries.
var ErrDrainInProgress = errors.New("syncq: drain already in progress")

// ErrDeliveryTimeout wraps a sync attempt that exceeded the per-entry
// timeout. The entry stays queued for retry like any other failure.
var ErrDeliveryTimeout = errors.New("syncq: delivery timed out")

// Applier performs the actual synchronization of one entry.
type Applier interface {
	Apply(ctx context.Context, entry storage.SyncEntry) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, entry storage.SyncEntry) error

func (f ApplierFunc) Apply(ctx context.Context, entry storage.SyncEntry) error {
	return f(ctx, entry)
}

// Config bounds the queue.
type Config struct {
	// MaxEntries caps the queue size. Enqueue fails beyond it.
	MaxEntries int

	// MaxAge is how long an entry may wait before it is evicted as stale.
	MaxAge time.Duration

	// EntryTimeout bounds each Apply call during a drain.
	EntryTimeout time.Duration

	// Now is the time source; overridable in tests.
	Now func() time.Time
}

// DefaultConfig returns the documented defaults: 100 entries, 7 day
// staleness window, 60 seconds per sync attempt.
func DefaultConfig() Config {
	return Config{
		MaxEntries:   100,
		MaxAge:       7 * 24 * time.Hour,
		EntryTimeout: 60 * time.Second,
	}
}

// DrainReport summarizes one drain pass: the IDs that synced, the IDs that
// failed and stay queued, and how many stale entries were evicted. Evicted
// entries never count as failures.
type DrainReport struct {
	Succeeded []string `json:"succeeded,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Evicted   int      `json:"evicted"`
}

// Queue is the persistent sync queue. All state lives in the store; the
// Queue itself only holds the single-drain latch.
type Queue struct {
	store   *storage.Store
	applier Applier
	cfg     Config

	drainMu sync.Mutex // held for the duration of a drain pass
}

// New creates a queue over the given store.
func New(store *storage.Store, applier Applier, cfg Config) *Queue {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	if cfg.EntryTimeout <= 0 {
		cfg.EntryTimeout = DefaultConfig().EntryTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Queue{store: store, applier: applier, cfg: cfg}
}

// Recover returns crashed in-flight entries to pending. Call once at startup
// before any drain.
func (q *Queue) Recover() error {
	released, err := q.store.ReleaseAllInFlight()
	if err != nil {
		return err
	}
	if released > 0 {
		logging.Sync("Recovered %d in-flight entries from previous run", released)
	}
	return nil
}

// Enqueue persists a payload for later synchronization. Fails with
// ErrQueueFull at capacity; the caller decides what to tell the user.
func (q *Queue) Enqueue(payload string) (storage.SyncEntry, error) {
	entry := storage.SyncEntry{
		ID:         uuid.New().String(),
		Payload:    payload,
		Status:     storage.StatusPending,
		EnqueuedAt: q.cfg.Now().UTC(),
	}
	if err := q.store.InsertEntry(entry, q.cfg.MaxEntries); err != nil {
		return storage.SyncEntry{}, err
	}
	logging.SyncDebug("Enqueued entry %s (%d bytes)", entry.ID, len(payload))
	return entry, nil
}

// PurgeStale evicts entries older than the staleness window and returns how
// many were removed.
func (q *Queue) PurgeStale() (int, error) {
	cutoff := q.cfg.Now().UTC().Add(-q.cfg.MaxAge)
	n, err := q.store.DeleteEnqueuedBefore(cutoff)
	return int(n), err
}

// Drain synchronizes pending entries in arrival order. Only one drain runs
// at a time; a second call returns ErrDrainInProgress. Stale entries found
// during the pass are evicted, not attempted. A failed entry stays queued
// for the next pass and does not stop the remainder of this one.
func (q *Queue) Drain(ctx context.Context) (DrainReport, error) {
	if !q.drainMu.TryLock() {
		return DrainReport{}, ErrDrainInProgress
	}
	defer q.drainMu.Unlock()

	var report DrainReport

	evicted, err := q.PurgeStale()
	if err != nil {
		return report, err
	}
	report.Evicted = evicted

	pending, err := q.store.ListPending()
	if err != nil {
		return report, err
	}
	if len(pending) == 0 {
		return report, nil
	}

	timer := logging.StartTimer(logging.CategorySync, "Drain")
	defer timer.Stop()
	logging.Sync("Draining %d pending entries", len(pending))

	for _, entry := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		// Entries can cross the staleness line while earlier ones sync.
		if entry.EnqueuedAt.Before(q.cfg.Now().UTC().Add(-q.cfg.MaxAge)) {
			if gone, err := q.store.EvictEntry(entry.ID); err == nil && gone {
				report.Evicted++
			}
			continue
		}

		if err := q.store.MarkInFlight(entry.ID); err != nil {
			if errors.Is(err, storage.ErrStatusConflict) {
				continue
			}
			return report, err
		}

		if err := q.apply(ctx, entry); err != nil {
			logging.Sync("Entry %s failed (attempt %d): %v", entry.ID, entry.Attempts+1, err)
			if relErr := q.store.ReleaseEntry(entry.ID); relErr != nil {
				return report, relErr
			}
			report.Failed = append(report.Failed, entry.ID)
			continue
		}

		if err := q.store.CompleteEntry(entry.ID); err != nil {
			return report, err
		}
		report.Succeeded = append(report.Succeeded, entry.ID)
	}

	logging.Sync("Drain complete: synced=%d failed=%d evicted=%d",
		len(report.Succeeded), len(report.Failed), report.Evicted)
	return report, nil
}

// apply runs the applier under the per-entry timeout. A deadline expiry
// caused by that timeout (rather than by the caller's own context) is
// tagged with ErrDeliveryTimeout.
func (q *Queue) apply(ctx context.Context, entry storage.SyncEntry) error {
	entryCtx, cancel := context.WithTimeout(ctx, q.cfg.EntryTimeout)
	defer cancel()
	err := q.applier.Apply(entryCtx, entry)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %w", ErrDeliveryTimeout, err)
	}
	return err
}

// Status reports queue health for the status surface.
type Status struct {
	Entries    int  `json:"entries"`
	MaxEntries int  `json:"max_entries"`
	Draining   bool `json:"draining"`
}

// Status returns a point-in-time view of the queue.
func (q *Queue) Status() (Status, error) {
	count, err := q.store.CountEntries()
	if err != nil {
		return Status{}, err
	}
	draining := !q.drainMu.TryLock()
	if !draining {
		q.drainMu.Unlock()
	}
	return Status{Entries: count, MaxEntries: q.cfg.MaxEntries, Draining: draining}, nil
}
