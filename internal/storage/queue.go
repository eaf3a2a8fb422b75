package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/0Reliance/maeple/internal/logging"
)

// EntryStatus is the lifecycle state of a queued sync entry.
type EntryStatus string

const (
	// StatusPending means the entry is waiting to be synced.
	StatusPending EntryStatus = "pending"
	// StatusInFlight means a drain pass is currently syncing the entry.
	StatusInFlight EntryStatus = "in_flight"
)

// ErrQueueFull is returned when inserting would exceed the configured
// capacity bound.
var ErrQueueFull = errors.New("storage: sync queue full")

// ErrStatusConflict is returned when a guarded status transition finds the
// entry in an unexpected state. A crashed or concurrent drain pass is the
// usual cause; callers treat it as "someone else owns this entry".
var ErrStatusConflict = errors.New("storage: entry status conflict")

// SyncEntry is a persisted journal payload awaiting synchronization.
type SyncEntry struct {
	ID            string
	Payload       string
	Status        EntryStatus
	Attempts      int
	EnqueuedAt    time.Time
	LastAttemptAt *time.Time
	UpdatedAt     time.Time
}

// InsertEntry persists a new pending entry. The capacity check and the
// insert run in one transaction so the bound holds even if two writers race.
func (s *Store) InsertEntry(e SyncEntry, maxEntries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sync_entries").Scan(&count); err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}
	if maxEntries > 0 && count >= maxEntries {
		return fmt.Errorf("%w: %d entries (max %d)", ErrQueueFull, count, maxEntries)
	}

	now := time.Now().UTC()
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = now
	}
	_, err = tx.Exec(`
		INSERT INTO sync_entries (id, payload, status, attempts, enqueued_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Payload, string(StatusPending), e.Attempts, e.EnqueuedAt, now)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry: %w", err)
	}
	logging.StoreDebug("Inserted sync entry %s (queue size %d)", e.ID, count+1)
	return nil
}

// CountEntries returns the total number of queued entries.
func (s *Store) CountEntries() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sync_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// ListPending returns pending entries in arrival order.
func (s *Store) ListPending() ([]SyncEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, payload, status, attempts, enqueued_at, last_attempt_at, updated_at
		FROM sync_entries
		WHERE status = ?
		ORDER BY enqueued_at ASC, id ASC`,
		string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// MarkInFlight transitions an entry from pending to in-flight and records
// the attempt. Returns ErrStatusConflict if the entry is not pending.
func (s *Store) MarkInFlight(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE sync_entries
		SET status = ?, attempts = attempts + 1, last_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusInFlight), now, now, id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("failed to mark entry in-flight: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// CompleteEntry removes a successfully synced entry. The in-flight guard
// keeps a retried drain pass from deleting an entry it no longer owns.
func (s *Store) CompleteEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM sync_entries WHERE id = ? AND status = ?`,
		id, string(StatusInFlight))
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	logging.StoreDebug("Completed sync entry %s", id)
	return nil
}

// ReleaseEntry returns a failed in-flight entry to pending so a later drain
// pass retries it. The attempt count recorded by MarkInFlight is kept.
func (s *Store) ReleaseEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE sync_entries SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusPending), time.Now().UTC(), id, string(StatusInFlight))
	if err != nil {
		return fmt.Errorf("failed to release entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ReleaseAllInFlight returns every in-flight entry to pending. Called on
// startup to recover entries orphaned by a crash mid-drain.
func (s *Store) ReleaseAllInFlight() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE sync_entries SET status = ?, updated_at = ?
		WHERE status = ?`,
		string(StatusPending), time.Now().UTC(), string(StatusInFlight))
	if err != nil {
		return 0, fmt.Errorf("failed to release in-flight entries: %w", err)
	}
	return res.RowsAffected()
}

// DeleteEnqueuedBefore evicts entries older than the cutoff. In-flight
// entries are left alone; the owning drain pass decides their fate.
func (s *Store) DeleteEnqueuedBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM sync_entries WHERE enqueued_at < ? AND status != ?`,
		cutoff.UTC(), string(StatusInFlight))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n > 0 {
		logging.Store("Evicted %d entries enqueued before %s", n, cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}

// EvictEntry removes a single pending entry, typically one that crossed the
// staleness line mid-drain. Evicting an entry another pass owns is a no-op.
func (s *Store) EvictEntry(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM sync_entries WHERE id = ? AND status = ?`,
		id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to evict entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

func scanEntries(rows *sql.Rows) ([]SyncEntry, error) {
	var entries []SyncEntry
	for rows.Next() {
		var e SyncEntry
		var status string
		var lastAttempt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Payload, &status, &e.Attempts, &e.EnqueuedAt, &lastAttempt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Status = EntryStatus(status)
		if lastAttempt.Valid {
			t := lastAttempt.Time
			e.LastAttemptAt = &t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return entries, nil
}
