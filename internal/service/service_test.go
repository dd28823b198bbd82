package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quantforge.com/internal/domain"
	"quantforge.com/internal/model"
)

// newTestDB 每个测试使用独立的内存数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Strategy{}, &model.Dataset{}, &model.Backtest{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// stubEngine returns canned results or a canned error.
type stubEngine struct {
	mu      sync.Mutex
	results *model.BacktestResults
	err     error
	calls   int

	lastCode    string
	lastCSV     []byte
	lastCapital float64
}

func (e *stubEngine) RunBacktest(ctx context.Context, strategyCode string, csvData []byte, initialCapital, commission float64) (*model.BacktestResults, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastCode = strategyCode
	e.lastCSV = csvData
	e.lastCapital = initialCapital
	if e.err != nil {
		return nil, e.err
	}
	return e.results, nil
}

func (e *stubEngine) Health(ctx context.Context) error { return nil }

// memQueue is an in-process JobQueue backed by a channel.
type memQueue struct {
	ch  chan uint
	err error
}

func newMemQueue() *memQueue {
	return &memQueue{ch: make(chan uint, 16)}
}

func (q *memQueue) Enqueue(ctx context.Context, backtestID uint) error {
	if q.err != nil {
		return q.err
	}
	q.ch <- backtestID
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context, timeout time.Duration) (uint, bool, error) {
	select {
	case id := <-q.ch:
		return id, true, nil
	case <-time.After(timeout):
		return 0, false, nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

// memCache is an in-process StatusCache.
type memCache struct {
	mu    sync.Mutex
	views map[uint]domain.BacktestStatusView
}

func newMemCache() *memCache {
	return &memCache{views: make(map[uint]domain.BacktestStatusView)}
}

func (c *memCache) SetStatus(ctx context.Context, view domain.BacktestStatusView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[view.ID] = view
}

func (c *memCache) GetStatus(ctx context.Context, backtestID uint) (domain.BacktestStatusView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[backtestID]
	return view, ok
}

// recordNotifier captures every pushed payload.
type recordNotifier struct {
	mu       sync.Mutex
	payloads []interface{}
	users    []uint
}

func (n *recordNotifier) NotifyUser(userID uint, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	n.payloads = append(n.payloads, payload)
}

func (n *recordNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.payloads)
}

var _ domain.EngineClient = (*stubEngine)(nil)
var _ domain.JobQueue = (*memQueue)(nil)
var _ domain.StatusCache = (*memCache)(nil)
var _ domain.Notifier = (*recordNotifier)(nil)
