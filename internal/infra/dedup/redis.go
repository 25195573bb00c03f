package dedup

import (
	"context"
	"fmt"
	"time"

	"bookingfast/internal/domain/workflow"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bookingfast:dispatch:"

var _ workflow.DedupStore = (*RedisStore)(nil)

// RedisStore keeps dispatch reservations in Redis so the debounce window
// holds across worker processes. A reservation is a key that expires when
// its window closes.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed dedup store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Reserve sets the key only if it is absent (SET NX PX window). The stored
// value is the reservation time in Unix nanoseconds.
func (s *RedisStore) Reserve(ctx context.Context, key string, at time.Time, window time.Duration) (bool, error) {
	if window <= 0 {
		window = workflow.DefaultDebounceWindow
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, at.UnixNano(), window).Result()
	if err != nil {
		return false, fmt.Errorf("reserving dedup entry: %w", err)
	}
	return ok, nil
}

// Purge is a no-op: reservations expire on their own.
func (s *RedisStore) Purge(context.Context, time.Time) error { return nil }
