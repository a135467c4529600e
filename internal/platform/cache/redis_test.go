package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSnapshot(t *testing.T) (*StockSnapshot, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStockSnapshot(client, time.Minute), mr
}

func TestStockSnapshotRoundTrip(t *testing.T) {
	snap, _ := newTestSnapshot(t)
	ctx := context.Background()

	_, ok := snap.Get(ctx, 7)
	require.False(t, ok)

	snap.Set(ctx, 7, 42)
	qty, ok := snap.Get(ctx, 7)
	require.True(t, ok)
	require.Equal(t, int64(42), qty)
}

func TestStockSnapshotInvalidate(t *testing.T) {
	snap, _ := newTestSnapshot(t)
	ctx := context.Background()

	snap.Set(ctx, 1, 10)
	snap.Set(ctx, 2, -5)
	snap.Invalidate(ctx, 1, 2)

	_, ok := snap.Get(ctx, 1)
	require.False(t, ok)
	_, ok = snap.Get(ctx, 2)
	require.False(t, ok)
}

func TestStockSnapshotExpiry(t *testing.T) {
	snap, mr := newTestSnapshot(t)
	ctx := context.Background()

	snap.Set(ctx, 3, 99)
	mr.FastForward(2 * time.Minute)

	_, ok := snap.Get(ctx, 3)
	require.False(t, ok)
}
