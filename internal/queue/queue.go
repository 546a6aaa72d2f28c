// Package queue wraps the Redis lists used to hand work to background workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when nothing arrived within the poll timeout.
var ErrEmpty = errors.New("queue empty")

// RedisQueue is a FIFO of JSON payloads on a single Redis list.
type RedisQueue struct {
	rdb  *redis.Client
	name string
}

// NewRedisQueue binds a queue to the list called name.
func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name}
}

// Name returns the underlying list key.
func (q *RedisQueue) Name() string {
	return q.name
}

// Push appends every item to the tail of the list in one round trip.
func (q *RedisQueue) Push(ctx context.Context, items ...any) error {
	if len(items) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("marshal %s item: %w", q.name, err)
		}
		pipe.RPush(ctx, q.name, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push %s: %w", q.name, err)
	}
	return nil
}

// Pop blocks up to timeout for the next payload. Redis requires timeout >= 1s
// for sub-second precision to be honored, so callers should poll at 1s.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	if len(item) < 2 {
		return nil, ErrEmpty
	}
	return []byte(item[1]), nil
}

// Len reports the number of pending items.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}
