package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "__pending__"

// IdempotencyStore implements usecase.IdempotencyStore. A key is claimed
// with SETNX holding a pending marker, then overwritten with the final
// response payload once the request finishes.
type IdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		prefix: "idempotency:",
	}
}

// TryInsertPending claims the key for this request. Returns false when
// another request holds it, finished or not.
func (s *IdempotencyStore) TryInsertPending(ctx context.Context, key, requestHash string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, pendingMarker+requestHash, ttl).Result()
}

// FindByKey returns the stored response payload, or nil while the original
// request is still running or the key is unknown.
func (s *IdempotencyStore) FindByKey(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	if len(value) >= len(pendingMarker) && string(value[:len(pendingMarker)]) == pendingMarker {
		return nil, nil
	}

	return value, nil
}

// UpdateResponsePayload stores the final response under a claimed key.
func (s *IdempotencyStore) UpdateResponsePayload(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, response, ttl).Err()
}

// Release drops the key if it still holds a pending marker. A recorded
// response stays for replay.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	if len(value) >= len(pendingMarker) && string(value[:len(pendingMarker)]) == pendingMarker {
		return s.client.Del(ctx, s.prefix+key).Err()
	}

	return nil
}
