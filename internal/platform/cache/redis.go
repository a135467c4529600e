// Package cache wraps the Redis client used for short-lived read snapshots.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// StockSnapshot caches derived stock quantities for listing screens only.
// Confirmation paths never read it; they always go to the ledger.
type StockSnapshot struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStockSnapshot builds a snapshot cache with the given TTL.
func NewStockSnapshot(client *redis.Client, ttl time.Duration) *StockSnapshot {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StockSnapshot{client: client, ttl: ttl}
}

func snapshotKey(productID int64) string {
	return fmt.Sprintf("stock:product:%d", productID)
}

// Get returns the cached quantity and whether it was present.
func (s *StockSnapshot) Get(ctx context.Context, productID int64) (int64, bool) {
	if s == nil || s.client == nil {
		return 0, false
	}
	raw, err := s.client.Get(ctx, snapshotKey(productID)).Result()
	if err != nil {
		return 0, false
	}
	var qty int64
	if err := json.Unmarshal([]byte(raw), &qty); err != nil {
		return 0, false
	}
	return qty, true
}

// Set stores the quantity for the snapshot TTL.
func (s *StockSnapshot) Set(ctx context.Context, productID int64, qty int64) {
	if s == nil || s.client == nil {
		return
	}
	raw, err := json.Marshal(qty)
	if err != nil {
		return
	}
	_ = s.client.Set(ctx, snapshotKey(productID), raw, s.ttl).Err()
}

// Invalidate drops cached quantities after a ledger write.
func (s *StockSnapshot) Invalidate(ctx context.Context, productIDs ...int64) {
	if s == nil || s.client == nil || len(productIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, snapshotKey(id))
	}
	_ = s.client.Del(ctx, keys...).Err()
}
