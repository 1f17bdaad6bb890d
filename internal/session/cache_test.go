package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("get miss", func(t *testing.T) {
		t.Parallel()
		c := NewMemoryCache()
		_, err := c.Get(ctx, "absent")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("set then get", func(t *testing.T) {
		t.Parallel()
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("v1")))
		require.NoError(t, c.Set(ctx, "k", []byte("v2")))

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("values are copied on both sides", func(t *testing.T) {
		t.Parallel()
		c := NewMemoryCache()

		in := []byte("original")
		require.NoError(t, c.Set(ctx, "k", in))
		in[0] = 'X'

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), got)

		got[0] = 'Y'
		again, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), again)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		t.Parallel()
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("v")))
		require.NoError(t, c.Delete(ctx, "k"))
		require.NoError(t, c.Delete(ctx, "k"))

		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("keys filters by prefix", func(t *testing.T) {
		t.Parallel()
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "game:a", []byte("1")))
		require.NoError(t, c.Set(ctx, "game:b", []byte("2")))
		require.NoError(t, c.Set(ctx, "story:a", []byte("3")))

		keys, err := c.Keys(ctx, "game:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"game:a", "game:b"}, keys)
	})
}
