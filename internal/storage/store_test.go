package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "maeple.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func pendingEntry(payload string) SyncEntry {
	return SyncEntry{
		ID:      uuid.New().String(),
		Payload: payload,
	}
}

func TestStore_InsertAndListFIFO(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		e := pendingEntry(fmt.Sprintf(`{"seq": %d}`, i))
		e.EnqueuedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.InsertEntry(e, 100))
	}

	pending, err := store.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, e := range pending {
		assert.Equal(t, fmt.Sprintf(`{"seq": %d}`, i), e.Payload)
		assert.Equal(t, StatusPending, e.Status)
	}
}

func TestStore_CapacityBound(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertEntry(pendingEntry("{}"), 3))
	}
	err := store.InsertEntry(pendingEntry("{}"), 3)
	require.ErrorIs(t, err, ErrQueueFull)

	count, err := store.CountEntries()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_StatusTransitions(t *testing.T) {
	store := newTestStore(t)

	e := pendingEntry(`{"mood": "calm"}`)
	require.NoError(t, store.InsertEntry(e, 100))

	require.NoError(t, store.MarkInFlight(e.ID))

	// Double-claim is rejected.
	require.ErrorIs(t, store.MarkInFlight(e.ID), ErrStatusConflict)

	// In-flight entries are invisible to drain listing.
	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, store.ReleaseEntry(e.ID))
	pending, err = store.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	require.NotNil(t, pending[0].LastAttemptAt)
}

func TestStore_CompleteRequiresInFlight(t *testing.T) {
	store := newTestStore(t)

	e := pendingEntry("{}")
	require.NoError(t, store.InsertEntry(e, 100))

	require.ErrorIs(t, store.CompleteEntry(e.ID), ErrStatusConflict)

	require.NoError(t, store.MarkInFlight(e.ID))
	require.NoError(t, store.CompleteEntry(e.ID))

	count, err := store.CountEntries()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStore_ReleaseAllInFlight(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 2; i++ {
		e := pendingEntry("{}")
		require.NoError(t, store.InsertEntry(e, 100))
		require.NoError(t, store.MarkInFlight(e.ID))
	}

	released, err := store.ReleaseAllInFlight()
	require.NoError(t, err)
	assert.Equal(t, int64(2), released)

	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestStore_DeleteEnqueuedBefore(t *testing.T) {
	store := newTestStore(t)

	old := pendingEntry(`{"age": "old"}`)
	old.EnqueuedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, store.InsertEntry(old, 100))

	fresh := pendingEntry(`{"age": "fresh"}`)
	require.NoError(t, store.InsertEntry(fresh, 100))

	inFlightOld := pendingEntry(`{"age": "old-inflight"}`)
	inFlightOld.EnqueuedAt = time.Now().UTC().Add(-9 * 24 * time.Hour)
	require.NoError(t, store.InsertEntry(inFlightOld, 100))
	require.NoError(t, store.MarkInFlight(inFlightOld.ID))

	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	evicted, err := store.DeleteEnqueuedBefore(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), evicted, "in-flight entries must survive eviction")

	count, err := store.CountEntries()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_JournalRecords(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		rec := JournalRecord{
			ID:        uuid.New().String(),
			Kind:      "mood_analysis",
			Content:   fmt.Sprintf(`{"mood": "calm", "seq": %d}`, i),
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.SaveRecord(rec))
	}
	other := JournalRecord{
		ID:      uuid.New().String(),
		Kind:    "observation",
		Content: `{"category": "hydration"}`,
	}
	require.NoError(t, store.SaveRecord(other))

	records, err := store.LoadRecords("mood_analysis", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Contains(t, records[0].Content, `"seq": 2`, "newest first")

	all, err := store.LoadRecords("mood_analysis", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maeple.db")

	store, err := NewStore(path)
	require.NoError(t, err)
	e := pendingEntry(`{"mood": "anxious"}`)
	require.NoError(t, store.InsertEntry(e, 100))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e.ID, pending[0].ID)
}
