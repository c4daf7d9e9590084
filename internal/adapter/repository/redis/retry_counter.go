package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RetryCounter implements usecase.RetryCounter. Advisory: the durable count
// lives on the payment order row, this one only feeds dashboards and fast
// checks.
type RetryCounter struct {
	client *redis.Client
	prefix string
}

// NewRetryCounter creates a new RetryCounter.
func NewRetryCounter(client *redis.Client) *RetryCounter {
	return &RetryCounter{
		client: client,
		prefix: "retry:count:",
	}
}

// Get returns the current count, zero when the key is absent.
func (c *RetryCounter) Get(ctx context.Context, aggregateID string) (int, error) {
	n, err := c.client.Get(ctx, c.prefix+aggregateID).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	return n, nil
}

// Increment bumps and returns the count.
func (c *RetryCounter) Increment(ctx context.Context, aggregateID string) (int, error) {
	n, err := c.client.Incr(ctx, c.prefix+aggregateID).Result()
	if err != nil {
		return 0, err
	}

	return int(n), nil
}

// Reset removes the counter.
func (c *RetryCounter) Reset(ctx context.Context, aggregateID string) error {
	return c.client.Del(ctx, c.prefix+aggregateID).Err()
}
