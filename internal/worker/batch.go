package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/queue"
)

const (
	BatchSize       = 50
	BatchTimeout    = 2 * time.Second
	PollTimeout     = 1 * time.Second // Must be >= 1s to satisfy Redis
	errorBackoff    = 3 * time.Second
	requeueBackoff  = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Source is the queue a worker drains. *queue.RedisQueue satisfies it.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Push(ctx context.Context, items ...any) error
}

// batchLoop pops JSON items from src and hands them to flush in batches of
// up to size, or whatever has accumulated after timeout. On shutdown the
// remaining buffer is flushed with a fresh deadline.
type batchLoop[T any] struct {
	src     Source
	size    int
	timeout time.Duration
	flush   func(ctx context.Context, batch []T)
	log     zerolog.Logger

	// sleep pauses after a queue error; replaced in tests.
	sleep func(ctx context.Context, d time.Duration)
}

func newBatchLoop[T any](src Source, flush func(context.Context, []T), log zerolog.Logger) *batchLoop[T] {
	return &batchLoop[T]{
		src:     src,
		size:    BatchSize,
		timeout: BatchTimeout,
		flush:   flush,
		log:     log,
		sleep:   pause,
	}
}

func (b *batchLoop[T]) run(ctx context.Context) {
	buffer := make([]T, 0, b.size)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= b.size || time.Since(lastFlush) >= b.timeout) {
			b.flush(ctx, buffer)
			buffer = make([]T, 0, b.size)
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			b.drain(buffer)
			return
		default:
		}

		raw, err := b.src.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) || ctx.Err() != nil {
				continue
			}
			b.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			b.sleep(ctx, errorBackoff)
			continue
		}

		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			// Malformed payloads can never succeed; drop them.
			b.log.Error().Err(err).Str("data", string(raw)).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

func (b *batchLoop[T]) drain(buffer []T) {
	if len(buffer) == 0 {
		return
	}
	b.log.Info().Int("count", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	b.flush(ctx, buffer)
}

// requeue pushes failed items back to the tail of src.
func requeue[T any](ctx context.Context, src Source, items []T, log zerolog.Logger, sleep func(context.Context, time.Duration)) {
	if len(items) == 0 {
		return
	}
	payload := make([]any, len(items))
	for i := range items {
		payload[i] = items[i]
	}
	if err := src.Push(context.WithoutCancel(ctx), payload...); err != nil {
		log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	sleep(ctx, requeueBackoff)
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
