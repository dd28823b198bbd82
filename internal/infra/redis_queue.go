package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quantforge.com/internal/domain"
)

// BacktestQueueKey is the Redis list carrying queued backtest job IDs.
// Producers RPUSH, the worker loop BLPOPs (FIFO).
const BacktestQueueKey = "backtest_job_queue"

// RedisJobQueue implements domain.JobQueue on a Redis list.
type RedisJobQueue struct {
	rdb *redis.Client
}

func NewRedisJobQueue(rdb *redis.Client) *RedisJobQueue {
	return &RedisJobQueue{rdb: rdb}
}

func (q *RedisJobQueue) Enqueue(ctx context.Context, backtestID uint) error {
	if err := q.rdb.RPush(ctx, BacktestQueueKey, strconv.FormatUint(uint64(backtestID), 10)).Err(); err != nil {
		return fmt.Errorf("failed to push job to redis: %w", err)
	}
	return nil
}

func (q *RedisJobQueue) Dequeue(ctx context.Context, timeout time.Duration) (uint, bool, error) {
	val, err := q.rdb.BLPop(ctx, timeout, BacktestQueueKey).Result()
	if err == redis.Nil {
		return 0, false, nil // timed out, queue empty
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to pop job from redis: %w", err)
	}
	// val[0] is the key, val[1] the element
	id, err := strconv.ParseUint(val[1], 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("malformed job id %q: %w", val[1], err)
	}
	return uint(id), true, nil
}

var _ domain.JobQueue = (*RedisJobQueue)(nil)
