package relay

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRelay(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), mr
}

func TestPutGet(t *testing.T) {
	store, _ := setupTestRelay(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session-1", "order-abc"))

	orderID, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "order-abc", orderID)
}

// The order ID must be retrievable even after every in-memory handle to it
// is gone: a fresh store over the same redis must still see it.
func TestGet_SurvivesStateLoss(t *testing.T) {
	store, mr := setupTestRelay(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session-1", "order-abc"))
	store = nil //nolint:ineffassign

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	fresh := NewRedisStore(client)

	orderID, err := fresh.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "order-abc", orderID)
}

func TestGet_NotFound(t *testing.T) {
	store, _ := setupTestRelay(t)

	_, err := store.Get(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDrop(t *testing.T) {
	store, _ := setupTestRelay(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session-1", "order-abc"))
	require.NoError(t, store.Drop(ctx, "session-1"))

	_, err := store.Get(ctx, "session-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_ExpiresEventually(t *testing.T) {
	store, mr := setupTestRelay(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session-1", "order-abc"))

	mr.FastForward(store.ttl + 1)

	_, err := store.Get(ctx, "session-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
