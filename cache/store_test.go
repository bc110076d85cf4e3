package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-proxy-cache/internal/cacheinfra"
	"github.com/goliatone/go-proxy-cache/pkg/codec"
)

type user struct {
	ID   int    `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

func TestGetOrDefault(t *testing.T) {
	ctx := context.Background()
	store := cacheinfra.NewMemoryStore(cacheinfra.WithCleanupInterval(0))
	defer store.Close()

	v, err := GetOrDefault(ctx, store, "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	require.NoError(t, store.Set(ctx, "zero", 0, time.Minute))
	v, err = GetOrDefault(ctx, store, "zero", 42)
	require.NoError(t, err)
	assert.Equal(t, 0, v, "a cached zero value is a hit, not a miss")
}

func TestAs(t *testing.T) {
	t.Run("plain value", func(t *testing.T) {
		got, err := As[[]string]([]string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, got)
	})

	t.Run("nil yields zero", func(t *testing.T) {
		got, err := As[[]string](nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("any target", func(t *testing.T) {
		got, err := As[any](7)
		require.NoError(t, err)
		assert.Equal(t, 7, got)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := As[int]("seven")
		assert.ErrorIs(t, err, ErrInvalidResultType)
	})

	for _, c := range []codec.Codec{codec.Msgpack, codec.JSON} {
		t.Run("encoded "+c.Name(), func(t *testing.T) {
			data, err := c.Marshal(user{ID: 1, Name: "Bob"})
			require.NoError(t, err)

			got, err := As[user](codec.Encoded{Data: data, Codec: c})
			require.NoError(t, err)
			assert.Equal(t, user{ID: 1, Name: "Bob"}, got)
		})
	}

	t.Run("encoded garbage", func(t *testing.T) {
		_, err := As[user](codec.Encoded{Data: []byte("{"), Codec: codec.JSON})
		assert.ErrorIs(t, err, ErrInvalidResultType)
		assert.True(t, errors.Is(err, codec.ErrUnmarshal))
	})
}

type closingStore struct {
	Store
	closed bool
}

func (c *closingStore) Close() error {
	c.closed = true
	return nil
}

func TestClose(t *testing.T) {
	s := &closingStore{}
	require.NoError(t, Close(s))
	assert.True(t, s.closed)

	sturdy, err := cacheinfra.NewSturdycStore(cacheinfra.DefaultSturdycConfig())
	require.NoError(t, err)
	assert.NoError(t, Close(sturdy))
}
