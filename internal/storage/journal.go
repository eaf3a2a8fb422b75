package storage

import (
	"fmt"
	"time"

	"github.com/0Reliance/maeple/internal/logging"
)

// JournalRecord is a persisted analysis result. Content is the validated
// JSON document; Kind names the analysis that produced it.
type JournalRecord struct {
	ID        string
	Kind      string
	Content   string
	CreatedAt time.Time
}

// SaveRecord persists a journal record.
func (s *Store) SaveRecord(rec JournalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO journal_records (id, kind, content, created_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.Content, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save journal record: %w", err)
	}
	logging.StoreDebug("Saved journal record %s kind=%s", rec.ID, rec.Kind)
	return nil
}

// LoadRecords returns the most recent records of a kind, newest first.
// A non-positive limit loads everything.
func (s *Store) LoadRecords(kind string, limit int) ([]JournalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, content, created_at FROM journal_records
		WHERE kind = ? ORDER BY created_at DESC`
	args := []interface{}{kind}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal records: %w", err)
	}
	defer rows.Close()

	var records []JournalRecord
	for rows.Next() {
		var rec JournalRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return records, nil
}
