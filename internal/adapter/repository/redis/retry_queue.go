package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/payflow/internal/domain"
)

const (
	retryPendingKey    = "retry:pending"
	retryInflightKey   = "retry:inflight"
	retryQuarantineKey = "retry:quarantine"
)

// RetryQueue implements usecase.RetryQueue on two sorted sets. Pending
// members are scored by their due time; claimed members move to the
// inflight set scored by claim time, where a sweeper can find them if the
// worker dies before finishing.
type RetryQueue struct {
	client *redis.Client
}

// NewRetryQueue creates a new RetryQueue.
func NewRetryQueue(client *redis.Client) *RetryQueue {
	return &RetryQueue{client: client}
}

// ScheduleRetry adds the item to the pending set, due after backoff.
func (q *RetryQueue) ScheduleRetry(ctx context.Context, item domain.RetryItem, backoff time.Duration) error {
	due := float64(time.Now().Add(backoff).UnixMilli())

	return q.client.ZAdd(ctx, retryPendingKey, redis.Z{Score: due, Member: string(item.Raw)}).Err()
}

// PollDueRetriesToInflight claims up to maxBatch due items. ZPOPMIN pops
// the lowest-scored members atomically, so two pollers never claim the same
// member; members popped before their due time are pushed straight back.
// When redis refuses the claim after the pop, the popped members go back to
// pending; if that fails too, the due items are returned alongside the
// error so the caller can still deliver them.
func (q *RetryQueue) PollDueRetriesToInflight(ctx context.Context, maxBatch int) ([]domain.RetryItem, error) {
	popped, err := q.client.ZPopMin(ctx, retryPendingKey, int64(maxBatch)).Result()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	nowMs := float64(now.UnixMilli())

	var (
		due        []domain.RetryItem
		early      []redis.Z
		claimed    []redis.Z
		quarantine []any
	)

	for _, z := range popped {
		if z.Score > nowMs {
			early = append(early, z)
			continue
		}

		raw, ok := z.Member.(string)
		if !ok {
			continue
		}

		item, err := domain.ParseRetryItem([]byte(raw))
		if err != nil {
			// Unparseable member. Park it where an operator can inspect
			// it rather than poison every future poll.
			quarantine = append(quarantine, raw, err.Error())
			continue
		}

		due = append(due, item)
		claimed = append(claimed, redis.Z{Score: nowMs, Member: raw})
	}

	if len(claimed) > 0 {
		if err := q.client.ZAdd(ctx, retryInflightKey, claimed...).Err(); err != nil {
			// The pop already removed these; push everything back so a
			// failed claim never loses items.
			if requeueErr := q.client.ZAdd(ctx, retryPendingKey, append(claimed, early...)...).Err(); requeueErr != nil {
				return due, err
			}
			return nil, err
		}
	}

	if len(early) > 0 {
		if err := q.client.ZAdd(ctx, retryPendingKey, early...).Err(); err != nil {
			// The claimed items made it to inflight; let the caller
			// deliver them despite the error.
			return due, err
		}
	}

	if len(quarantine) > 0 {
		if err := q.client.HSet(ctx, retryQuarantineKey, quarantine...).Err(); err != nil {
			return due, err
		}
	}

	return due, nil
}

// Quarantined returns the unparseable members parked by polling, keyed by
// raw member with the decode error as value.
func (q *RetryQueue) Quarantined(ctx context.Context) (map[string]string, error) {
	return q.client.HGetAll(ctx, retryQuarantineKey).Result()
}

// RemoveFromInflight acknowledges a processed item.
func (q *RetryQueue) RemoveFromInflight(ctx context.Context, item domain.RetryItem) error {
	return q.client.ZRem(ctx, retryInflightKey, string(item.Raw)).Err()
}

// ReclaimInflight moves items claimed more than olderThan ago back to the
// pending set, due immediately. Restores liveness when a worker crashed
// mid-processing; handlers are idempotent, so the odd double delivery is
// safe.
func (q *RetryQueue) ReclaimInflight(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now()
	cutoff := float64(now.Add(-olderThan).UnixMilli())

	stale, err := q.client.ZRangeByScore(ctx, retryInflightKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(cutoff, 'f', -1, 64),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	nowScore := float64(now.UnixMilli())
	for _, raw := range stale {
		removed, err := q.client.ZRem(ctx, retryInflightKey, raw).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			// Another sweeper got it first.
			continue
		}

		if err := q.client.ZAdd(ctx, retryPendingKey, redis.Z{Score: nowScore, Member: raw}).Err(); err != nil {
			return moved, err
		}
		moved++
	}

	return moved, nil
}
