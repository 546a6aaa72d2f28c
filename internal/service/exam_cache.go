package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exam-proctor/internal/config"
	"github.com/stemsi/exam-proctor/internal/model"
)

// RedisExamCache keeps serialized exams (answer keys included) in Redis.
type RedisExamCache struct {
	rdb *redis.Client
}

// NewRedisExamCache creates a new RedisExamCache.
func NewRedisExamCache(rdb *redis.Client) *RedisExamCache {
	return &RedisExamCache{rdb: rdb}
}

func (c *RedisExamCache) Get(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.ExamKey(id.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	exam := &model.Exam{}
	if err := json.Unmarshal(raw, exam); err != nil {
		return nil, fmt.Errorf("decode cached exam: %w", err)
	}
	return exam, nil
}

func (c *RedisExamCache) Set(ctx context.Context, exam *model.Exam, ttl time.Duration) error {
	raw, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.ExamKey(exam.ID.String()), raw, ttl).Err()
}

// RedisEventBus broadcasts session events over Redis Pub/Sub so every
// instance can forward them to its WebSocket clients.
type RedisEventBus struct {
	rdb     *redis.Client
	onError func(err error, ev SessionEvent)
}

// NewRedisEventBus creates a bus; onError is called for failed publishes.
func NewRedisEventBus(rdb *redis.Client, onError func(err error, ev SessionEvent)) *RedisEventBus {
	return &RedisEventBus{rdb: rdb, onError: onError}
}

func (b *RedisEventBus) Publish(ctx context.Context, ev SessionEvent) {
	raw, err := json.Marshal(ev)
	if err == nil {
		err = b.rdb.Publish(ctx, config.CacheKey.SessionEventsChannel(ev.SessionID.String()), raw).Err()
	}
	if err != nil && b.onError != nil {
		b.onError(err, ev)
	}
}

// Subscribe streams events for one session. The channel closes when ctx is
// done or the returned close func is called.
func (b *RedisEventBus) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan SessionEvent, func() error) {
	ps := b.rdb.Subscribe(ctx, config.CacheKey.SessionEventsChannel(sessionID.String()))
	out := make(chan SessionEvent, 16)

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, ps.Close
}
