package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"quantforge.com/internal/domain"
	"quantforge.com/internal/model"
)

// statusCacheTTL keeps entries alive across a handful of 3-second polls.
const statusCacheTTL = 30 * time.Second

// RedisStatusCache implements domain.StatusCache. Misses fall back to the
// database in the service layer, so cache errors are logged and swallowed.
type RedisStatusCache struct {
	rdb *redis.Client
}

func NewRedisStatusCache(rdb *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{rdb: rdb}
}

func statusKey(backtestID uint) string {
	return fmt.Sprintf("backtest:status:%d", backtestID)
}

type cachedStatus struct {
	UserID       uint       `json:"user_id"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (c *RedisStatusCache) SetStatus(ctx context.Context, view domain.BacktestStatusView) {
	data, err := json.Marshal(cachedStatus{
		UserID:       view.UserID,
		Status:       string(view.Status),
		ErrorMessage: view.ErrorMessage,
		CompletedAt:  view.CompletedAt,
	})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, statusKey(view.ID), data, statusCacheTTL).Err(); err != nil {
		log.Printf("StatusCache: failed to cache status for job %d: %v", view.ID, err)
	}
}

func (c *RedisStatusCache) GetStatus(ctx context.Context, backtestID uint) (domain.BacktestStatusView, bool) {
	val, err := c.rdb.Get(ctx, statusKey(backtestID)).Result()
	if err != nil {
		return domain.BacktestStatusView{}, false
	}
	var cached cachedStatus
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return domain.BacktestStatusView{}, false
	}
	return domain.BacktestStatusView{
		ID:           backtestID,
		UserID:       cached.UserID,
		Status:       model.BacktestStatus(cached.Status),
		ErrorMessage: cached.ErrorMessage,
		CompletedAt:  cached.CompletedAt,
	}, true
}

var _ domain.StatusCache = (*RedisStatusCache)(nil)
