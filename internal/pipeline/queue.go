package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ggasparott/FastMission/internal/metrics"
)

const (
	DefaultQueueKey    = "fastmission:batches"
	DefaultPollTimeout = 5 * time.Second
)

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")
)

// Queue hands batch identifiers from the API to the workers.
// Dequeue blocks until an id is available; found is false when it returned empty-handed.
type Queue interface {
	Enqueue(ctx context.Context, batchID uuid.UUID) error
	Dequeue(ctx context.Context) (batchID uuid.UUID, found bool, err error)
}

// ChannelQueue is an in-process queue for single-instance deployments.
type ChannelQueue struct {
	ch chan uuid.UUID
}

// NewChannelQueue creates a buffered in-process queue.
func NewChannelQueue(size int) *ChannelQueue {
	if size < 1 {
		size = 1
	}
	return &ChannelQueue{ch: make(chan uuid.UUID, size)}
}

// Enqueue adds batchID without blocking.
func (q *ChannelQueue) Enqueue(ctx context.Context, batchID uuid.UUID) error {
	select {
	case q.ch <- batchID:
		metrics.BatchesEnqueuedTotal.WithLabelValues("channel").Inc()
		return nil
	default:
		return fmt.Errorf("%w: cannot enqueue batch %s", ErrQueueFull, batchID)
	}
}

// Dequeue waits for the next id or for ctx to end.
func (q *ChannelQueue) Dequeue(ctx context.Context) (uuid.UUID, bool, error) {
	select {
	case <-ctx.Done():
		return uuid.Nil, false, ctx.Err()
	case id, ok := <-q.ch:
		if !ok {
			return uuid.Nil, false, ErrQueueClosed
		}
		return id, true, nil
	}
}

// Close stops the queue. Pending ids are still delivered.
func (q *ChannelQueue) Close() {
	close(q.ch)
}

// ListClient is the subset of the redis client the queue uses.
type ListClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisQueue is a FIFO list in Redis, shared by every instance of the service.
type RedisQueue struct {
	client      ListClient
	key         string
	pollTimeout time.Duration
}

// NewRedisQueue creates a queue on the list stored at key.
func NewRedisQueue(client ListClient, key string, pollTimeout time.Duration) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &RedisQueue{client: client, key: key, pollTimeout: pollTimeout}
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, batchID uuid.UUID) error {
	if err := q.client.LPush(ctx, q.key, batchID.String()).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	metrics.BatchesEnqueuedTotal.WithLabelValues("redis").Inc()
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (uuid.UUID, bool, error) {
	result, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return uuid.Nil, false, ctxErr
		}
		return uuid.Nil, false, fmt.Errorf("brpop failed: %w", err)
	}

	// BRPOP replies with [key, value]
	if len(result) != 2 {
		return uuid.Nil, false, fmt.Errorf("unexpected brpop reply: %v", result)
	}
	batchID, err := uuid.Parse(result[1])
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid batch id in queue: %w", err)
	}
	return batchID, true, nil
}
