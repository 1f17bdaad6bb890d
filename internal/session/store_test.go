package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *MemoryCache) {
	t.Helper()
	cache := NewMemoryCache()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(cache, logger), cache
}

// seedRecord writes a record straight into the cache so tests can control
// the activity timestamps.
func seedRecord(t *testing.T, cache *MemoryCache, ns string, rec Record) {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), sessionKey(ns, rec.ID), raw))
}

func TestStoreCreate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("generates an id when absent", func(t *testing.T) {
		t.Parallel()
		store, _ := newTestStore(t)

		rec, err := store.Create(ctx, "game", "", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.NotNil(t, rec.Data)
		assert.False(t, rec.CreatedAt.IsZero())
	})

	t.Run("keeps the caller's id and data", func(t *testing.T) {
		t.Parallel()
		store, _ := newTestStore(t)

		rec, err := store.Create(ctx, "game", "s1", map[string]any{"objective": "win"})
		require.NoError(t, err)
		assert.Equal(t, "s1", rec.ID)

		got, err := store.Get(ctx, "game", "s1")
		require.NoError(t, err)
		assert.Equal(t, "win", got.Data["objective"])
	})
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		t.Parallel()
		store, _ := newTestStore(t)
		_, err := store.Get(ctx, "game", "nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		t.Parallel()
		store, _ := newTestStore(t)
		_, err := store.Create(ctx, "game", "s1", nil)
		require.NoError(t, err)

		_, err = store.Get(ctx, "story", "s1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("refreshes the activity timestamp", func(t *testing.T) {
		t.Parallel()
		store, cache := newTestStore(t)

		stale := time.Now().UTC().Add(-2 * time.Hour)
		seedRecord(t, cache, "game", Record{ID: "s1", CreatedAt: stale, LastActive: stale})

		got, err := store.Get(ctx, "game", "s1")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), got.LastActive, time.Second)

		// The touch is persisted, not only returned.
		again, err := store.Get(ctx, "game", "s1")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), again.LastActive, time.Second)
	})
}

func TestStoreUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("merges into existing data", func(t *testing.T) {
		t.Parallel()
		store, _ := newTestStore(t)

		_, err := store.Create(ctx, "game", "s1", map[string]any{"a": "1", "b": "2"})
		require.NoError(t, err)

		rec, err := store.Update(ctx, "game", "s1", map[string]any{"b": "3", "c": "4"}, false)
		require.NoError(t, err)
		assert.Equal(t, "1", rec.Data["a"])
		assert.Equal(t, "3", rec.Data["b"])
		assert.Equal(t, "4", rec.Data["c"])
	})

	t.Run("missing session without createIfMissing", func(t *testing.T) {
		t.Parallel()
		store, _ := newTestStore(t)

		_, err := store.Update(ctx, "game", "nope", map[string]any{"a": "1"}, false)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("missing session with createIfMissing seeds from partial", func(t *testing.T) {
		t.Parallel()
		store, _ := newTestStore(t)

		rec, err := store.Update(ctx, "game", "fresh", map[string]any{"a": "1"}, true)
		require.NoError(t, err)
		assert.Equal(t, "fresh", rec.ID)
		assert.Equal(t, "1", rec.Data["a"])
	})
}

func TestStoreSave(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "game", "s1", nil)
	require.NoError(t, err)

	rec.MessageCount = 7
	require.NoError(t, store.Save(ctx, "game", rec))

	got, err := store.Get(ctx, "game", "s1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.MessageCount)
}

func TestStoreClearData(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "game", "s1", map[string]any{"a": "1"})
	require.NoError(t, err)
	rec.MessageCount = 3
	require.NoError(t, store.Save(ctx, "game", rec))

	require.NoError(t, store.ClearData(ctx, "game", "s1"))

	got, err := store.Get(ctx, "game", "s1")
	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Zero(t, got.MessageCount)
	assert.Equal(t, "s1", got.ID)
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "game", "s1", nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "game", "s1"))
	_, err = store.Get(ctx, "game", "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreReapIdle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("reaps only idle sessions in the namespace", func(t *testing.T) {
		t.Parallel()
		store, cache := newTestStore(t)

		now := time.Now().UTC()
		seedRecord(t, cache, "game", Record{ID: "idle", LastActive: now.Add(-2 * time.Hour)})
		seedRecord(t, cache, "game", Record{ID: "active", LastActive: now.Add(-5 * time.Minute)})
		seedRecord(t, cache, "story", Record{ID: "idle", LastActive: now.Add(-2 * time.Hour)})

		reaped, err := store.ReapIdle(ctx, "game", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, reaped)

		_, err = store.Get(ctx, "game", "idle")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = store.Get(ctx, "game", "active")
		assert.NoError(t, err)
		_, err = store.Get(ctx, "story", "idle")
		assert.NoError(t, err)
	})

	t.Run("a touch resets the idle clock", func(t *testing.T) {
		t.Parallel()
		store, cache := newTestStore(t)

		seedRecord(t, cache, "game", Record{
			ID:         "s1",
			LastActive: time.Now().UTC().Add(-2 * time.Hour),
		})

		_, err := store.Get(ctx, "game", "s1")
		require.NoError(t, err)

		reaped, err := store.ReapIdle(ctx, "game", time.Hour)
		require.NoError(t, err)
		assert.Zero(t, reaped)
	})

	t.Run("undecodable records are skipped", func(t *testing.T) {
		t.Parallel()
		store, cache := newTestStore(t)

		require.NoError(t, cache.Set(ctx, "game:junk", []byte("{not json")))
		seedRecord(t, cache, "game", Record{ID: "idle", LastActive: time.Now().UTC().Add(-2 * time.Hour)})

		reaped, err := store.ReapIdle(ctx, "game", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, reaped)

		_, err = cache.Get(ctx, "game:junk")
		assert.NoError(t, err, "junk records must survive the reap")
	})
}
