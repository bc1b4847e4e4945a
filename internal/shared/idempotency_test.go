package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client, time.Minute), mr
}

func TestIdempotencyRejectsReplay(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, 1, "procurement", "abc"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, 1, "procurement", "abc"), ErrIdempotencyConflict)

	// same key in another tenant or module is independent
	require.NoError(t, store.CheckAndInsert(ctx, 2, "procurement", "abc"))
	require.NoError(t, store.CheckAndInsert(ctx, 1, "treasury", "abc"))
}

func TestIdempotencyDeleteReleasesKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, 1, "inventory", "k1"))
	require.NoError(t, store.Delete(ctx, 1, "inventory", "k1"))
	require.NoError(t, store.CheckAndInsert(ctx, 1, "inventory", "k1"))
}

func TestIdempotencyKeyExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, 1, "inventory", "k2"))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, store.CheckAndInsert(ctx, 1, "inventory", "k2"))
}

func TestIdempotencyRequiresKey(t *testing.T) {
	store, _ := newTestStore(t)
	require.Error(t, store.CheckAndInsert(context.Background(), 1, "inventory", ""))
}
