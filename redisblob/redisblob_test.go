package redisblob

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	atrium "github.com/atriumhq/atrium"
)

// setupStore starts a miniredis instance and returns a store bound to it.
func setupStore(t *testing.T) *Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewWithClient(client)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestGetSetDelete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "member:missing")
	assert.ErrorIs(t, err, atrium.ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "member:1", []byte(`{"id":"1"}`)))

	data, err := store.Get(ctx, "member:1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"1"}`), data)

	require.NoError(t, store.Delete(ctx, "member:1"))
	_, err = store.Get(ctx, "member:1")
	assert.ErrorIs(t, err, atrium.ErrKeyNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, "member:1"))
}

func TestList_ByPrefix(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "member:1", []byte(`{}`)))
	require.NoError(t, store.Set(ctx, "member:2", []byte(`{}`)))
	require.NoError(t, store.Set(ctx, "member:_list", []byte(`[]`)))
	require.NoError(t, store.Set(ctx, "event:1", []byte(`{}`)))

	keys, err := store.List(ctx, "member:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"member:1", "member:2", "member:_list"}, keys)

	keys, err = store.List(ctx, "venue:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not-a-url")
	assert.Error(t, err)
}
