package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceCache implements usecase.BalanceCache: per-account posted deltas
// accumulated with INCRBY. Reads serve snapshot+delta; a missing or expired
// key just means the reader falls back to the durable snapshot.
type BalanceCache struct {
	client         *redis.Client
	prefix         string
	snapshotPrefix string
	ttl            time.Duration
}

// NewBalanceCache creates a new BalanceCache.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &BalanceCache{
		client:         client,
		prefix:         "balance:delta:",
		snapshotPrefix: "balance:snapshot:",
		ttl:            ttl,
	}
}

// ApplyDelta accumulates a posted delta for one account.
func (c *BalanceCache) ApplyDelta(ctx context.Context, accountCode string, delta int64) error {
	key := c.prefix + accountCode

	if err := c.client.IncrBy(ctx, key, delta).Err(); err != nil {
		return err
	}

	return c.client.Expire(ctx, key, c.ttl).Err()
}

// GetDelta returns the accumulated delta, zero when absent.
func (c *BalanceCache) GetDelta(ctx context.Context, accountCode string) (int64, error) {
	n, err := c.client.Get(ctx, c.prefix+accountCode).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	return n, nil
}

// SetSnapshot stores an authoritative balance for approximate reads.
func (c *BalanceCache) SetSnapshot(ctx context.Context, accountCode string, balance int64) error {
	return c.client.Set(ctx, c.snapshotPrefix+accountCode, balance, c.ttl).Err()
}

// GetSnapshot returns the stored balance and whether one is cached.
func (c *BalanceCache) GetSnapshot(ctx context.Context, accountCode string) (int64, bool, error) {
	n, err := c.client.Get(ctx, c.snapshotPrefix+accountCode).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}

	return n, true, nil
}

// Invalidate drops the cached delta for one account. The snapshot stays;
// it is overwritten on the next authoritative read.
func (c *BalanceCache) Invalidate(ctx context.Context, accountCode string) error {
	return c.client.Del(ctx, c.prefix+accountCode).Err()
}
