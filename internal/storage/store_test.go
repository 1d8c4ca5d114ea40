package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-client-bridge/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestKVRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("pwd_abc", "ciphertext"))

	value, err := store.Get("pwd_abc")
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", value)

	// Overwrite
	require.NoError(t, store.Put("pwd_abc", "ciphertext2"))
	value, err = store.Get("pwd_abc")
	require.NoError(t, err)
	assert.Equal(t, "ciphertext2", value)
}

func TestKVGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("pwd_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("pwd_abc", "v"))
	require.NoError(t, store.Delete("pwd_abc"))

	_, err := store.Get("pwd_abc")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error
	assert.NoError(t, store.Delete("pwd_abc"))
}

func TestKVList(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("pwd_a", "1"))
	require.NoError(t, store.Put("pwd_b", "2"))
	require.NoError(t, store.Put("other_c", "3"))

	entries, err := store.List("pwd_")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "pwd_a", entries[0].Key)
	assert.Equal(t, "pwd_b", entries[1].Key)
}

func TestKVReplaceKeys(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("old_key", "v"))
	require.NoError(t, store.Put("old_key_timestamp", "123"))

	err := store.ReplaceKeys(
		map[string]string{"new_key": "v", "new_key_timestamp": "123"},
		[]string{"old_key", "old_key_timestamp"},
	)
	require.NoError(t, err)

	_, err = store.Get("old_key")
	assert.ErrorIs(t, err, ErrNotFound)

	value, err := store.Get("new_key")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestKVWipe(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("pwd_a", "1"))
	require.NoError(t, store.Put("pwd_a_timestamp", "2"))
	require.NoError(t, store.Put("unrelated", "3"))

	n, err := store.Wipe("pwd_")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	value, err := store.Get("unrelated")
	require.NoError(t, err)
	assert.Equal(t, "3", value)
}

func TestDecisionQueue(t *testing.T) {
	store := newTestStore(t)

	event := &types.DecisionEvent{
		EventID:       uuid.New().String(),
		ItemID:        "movie-42",
		Container:     "mkv",
		VideoCodec:    "h265",
		AudioCodec:    "aac",
		Width:         3840,
		Height:        2160,
		Bitrate:       20_000_000,
		CanDirectPlay: true,
		Score:         85,
		Issues:        []string{"Video codec h265 uses software decoding"},
	}
	require.NoError(t, store.InsertDecision(event))

	rows, err := store.GetUnpublishedDecisions(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, event.EventID, rows[0].Event.EventID)
	assert.Equal(t, "h265", rows[0].Event.VideoCodec)
	assert.Equal(t, event.Issues, rows[0].Event.Issues)
	assert.True(t, rows[0].Event.CanDirectPlay)

	count, err := store.PendingDecisionCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.MarkDecisionsPublished([]string{event.EventID}))

	rows, err = store.GetUnpublishedDecisions(10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecisionRetryCount(t *testing.T) {
	store := newTestStore(t)

	event := &types.DecisionEvent{
		EventID:   uuid.New().String(),
		Container: "mp4",
		Score:     100,
	}
	require.NoError(t, store.InsertDecision(event))

	count, err := store.IncrementDecisionRetry(event.EventID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.IncrementDecisionRetry(event.EventID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPrunePublishedDecisions(t *testing.T) {
	store := newTestStore(t)

	event := &types.DecisionEvent{
		EventID:   uuid.New().String(),
		Container: "mp4",
		Score:     100,
	}
	require.NoError(t, store.InsertDecision(event))
	require.NoError(t, store.MarkDecisionsPublished([]string{event.EventID}))

	// Nothing older than an hour yet
	n, err := store.PrunePublishedDecisions(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// Everything published before "now" qualifies with a negative age
	n, err = store.PrunePublishedDecisions(-time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
