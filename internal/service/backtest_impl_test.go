package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"quantforge.com/internal/domain"
	"quantforge.com/internal/model"
)

type backtestFixture struct {
	svc      *BacktestServiceImpl
	db       *gorm.DB
	engine   *stubEngine
	queue    *memQueue
	cache    *memCache
	notifier *recordNotifier
	strategy *model.Strategy
	dataset  *model.Dataset
}

func newBacktestFixture(t *testing.T) *backtestFixture {
	t.Helper()
	db := newTestDB(t)
	ctx := context.Background()

	strategy, err := NewStrategyService(db).CreateStrategy(ctx, 1, rsiStrategyInput("RSI Reversal"))
	if err != nil {
		t.Fatalf("seed strategy: %v", err)
	}
	path := writeTempCSV(t, sampleCSV)
	dataset, err := NewDatasetService(db).IngestFile(ctx, 1, "BTC-USD", "btc.csv", path, 1)
	if err != nil {
		t.Fatalf("seed dataset: %v", err)
	}

	engine := &stubEngine{results: &model.BacktestResults{
		FinalEquity:    12500,
		TotalReturnPct: 25,
		SharpeRatio:    1.4,
		TotalTrades:    8,
	}}
	queue := newMemQueue()
	cache := newMemCache()
	notifier := &recordNotifier{}

	return &backtestFixture{
		svc:      NewBacktestService(db, engine, queue, cache, notifier, 5*time.Second),
		db:       db,
		engine:   engine,
		queue:    queue,
		cache:    cache,
		notifier: notifier,
		strategy: strategy,
		dataset:  dataset,
	}
}

func (f *backtestFixture) submit(t *testing.T) *model.Backtest {
	t.Helper()
	backtest, err := f.svc.SubmitBacktest(context.Background(), 1, domain.SubmitBacktestInput{
		StrategyID: f.strategy.ID,
		DatasetID:  f.dataset.ID,
		Asset:      "BTC-USD",
	})
	if err != nil {
		t.Fatalf("SubmitBacktest: %v", err)
	}
	return backtest
}

func TestSubmitBacktestQueuesJob(t *testing.T) {
	f := newBacktestFixture(t)
	ctx := context.Background()

	backtest := f.submit(t)

	if backtest.Status != model.BacktestStatusQueued {
		t.Errorf("expected queued, got %s", backtest.Status)
	}
	if backtest.InitialCapital != 10000 || backtest.Commission != 0.001 {
		t.Errorf("defaults not applied: %v / %v", backtest.InitialCapital, backtest.Commission)
	}
	if backtest.StartDate == nil || backtest.EndDate == nil {
		t.Error("dataset date range not snapshotted")
	}

	id, ok, err := f.queue.Dequeue(ctx, 100*time.Millisecond)
	if err != nil || !ok || id != backtest.ID {
		t.Fatalf("expected job %d on queue, got %d/%v/%v", backtest.ID, id, ok, err)
	}

	var strategy model.Strategy
	f.db.First(&strategy, f.strategy.ID)
	if strategy.BacktestCount != 1 {
		t.Errorf("expected backtest_count 1, got %d", strategy.BacktestCount)
	}

	if view, ok := f.cache.GetStatus(ctx, backtest.ID); !ok || view.Status != model.BacktestStatusQueued {
		t.Errorf("status not cached: %v/%v", view, ok)
	}
}

func TestSubmitBacktestOwnership(t *testing.T) {
	f := newBacktestFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitBacktest(ctx, 2, domain.SubmitBacktestInput{
		StrategyID: f.strategy.ID,
		DatasetID:  f.dataset.ID,
		Asset:      "BTC-USD",
	})
	if err == nil {
		t.Fatal("expected cross-owner submit to fail")
	}
	if appErr, ok := err.(*domain.AppError); !ok || appErr.Code != 403 {
		t.Errorf("expected 403, got %v", err)
	}

	_, err = f.svc.SubmitBacktest(ctx, 1, domain.SubmitBacktestInput{
		StrategyID: 999,
		DatasetID:  f.dataset.ID,
		Asset:      "BTC-USD",
	})
	if appErr, ok := err.(*domain.AppError); !ok || appErr.Code != 404 {
		t.Errorf("expected 404 for missing strategy, got %v", err)
	}
}

func TestProcessJobCompletes(t *testing.T) {
	f := newBacktestFixture(t)
	ctx := context.Background()

	backtest := f.submit(t)
	f.svc.ProcessJob(ctx, backtest.ID)

	var stored model.Backtest
	if err := f.db.First(&stored, backtest.ID).Error; err != nil {
		t.Fatalf("load backtest: %v", err)
	}
	if stored.Status != model.BacktestStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", stored.Status, stored.ErrorMessage)
	}
	if stored.Results == nil || stored.Results.FinalEquity != 12500 {
		t.Errorf("results not persisted: %+v", stored.Results)
	}
	if stored.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if stored.ErrorMessage != "" {
		t.Errorf("unexpected error message: %q", stored.ErrorMessage)
	}

	if f.engine.lastCode != f.strategy.CompiledCode {
		t.Error("engine did not receive the compiled strategy code")
	}
	if string(f.engine.lastCSV) != sampleCSV {
		t.Error("engine did not receive the dataset file contents")
	}

	if view, ok := f.cache.GetStatus(ctx, backtest.ID); !ok || view.Status != model.BacktestStatusCompleted {
		t.Errorf("terminal status not cached: %v/%v", view, ok)
	}
	if f.notifier.count() != 1 {
		t.Errorf("expected 1 push, got %d", f.notifier.count())
	}
}

func TestProcessJobEngineFailure(t *testing.T) {
	f := newBacktestFixture(t)
	f.engine.results = nil
	f.engine.err = errors.New("backtest engine is not available: connection refused")
	ctx := context.Background()

	backtest := f.submit(t)
	f.svc.ProcessJob(ctx, backtest.ID)

	var stored model.Backtest
	if err := f.db.First(&stored, backtest.ID).Error; err != nil {
		t.Fatalf("load backtest: %v", err)
	}
	if stored.Status != model.BacktestStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Error("failed job must carry an error message")
	}
	if stored.Results != nil {
		t.Errorf("failed job must not carry results: %+v", stored.Results)
	}
}

func TestProcessJobClaimedOnce(t *testing.T) {
	f := newBacktestFixture(t)
	ctx := context.Background()

	backtest := f.submit(t)
	f.svc.ProcessJob(ctx, backtest.ID)
	// A duplicate dispatch of the same ID must not rerun the engine or
	// rewrite the terminal state.
	f.svc.ProcessJob(ctx, backtest.ID)

	if f.engine.calls != 1 {
		t.Errorf("expected 1 engine call, got %d", f.engine.calls)
	}
	if f.notifier.count() != 1 {
		t.Errorf("expected 1 push, got %d", f.notifier.count())
	}
}

func TestGetBacktestStatusCacheAndFallback(t *testing.T) {
	f := newBacktestFixture(t)
	ctx := context.Background()

	backtest := f.submit(t)

	view, err := f.svc.GetBacktestStatus(ctx, 1, backtest.ID)
	if err != nil {
		t.Fatalf("GetBacktestStatus: %v", err)
	}
	if view.Status != model.BacktestStatusQueued {
		t.Errorf("expected queued, got %s", view.Status)
	}

	// Cached entries still enforce ownership.
	if _, err := f.svc.GetBacktestStatus(ctx, 2, backtest.ID); err == nil {
		t.Error("expected cross-owner status read to fail")
	}

	// Drop the cache entry; the database fallback repopulates it.
	delete(f.cache.views, backtest.ID)
	view, err = f.svc.GetBacktestStatus(ctx, 1, backtest.ID)
	if err != nil {
		t.Fatalf("GetBacktestStatus fallback: %v", err)
	}
	if view.Status != model.BacktestStatusQueued {
		t.Errorf("expected queued from fallback, got %s", view.Status)
	}
	if _, ok := f.cache.GetStatus(ctx, backtest.ID); !ok {
		t.Error("fallback read should repopulate the cache")
	}
}

func TestDeleteBacktest(t *testing.T) {
	f := newBacktestFixture(t)
	ctx := context.Background()

	backtest := f.submit(t)
	if err := f.svc.DeleteBacktest(ctx, 2, backtest.ID); err == nil {
		t.Error("expected cross-owner delete to fail")
	}
	if err := f.svc.DeleteBacktest(ctx, 1, backtest.ID); err != nil {
		t.Fatalf("DeleteBacktest: %v", err)
	}
	if _, err := f.svc.GetBacktest(ctx, 1, backtest.ID); err == nil {
		t.Error("expected deleted backtest to be gone")
	}
}
