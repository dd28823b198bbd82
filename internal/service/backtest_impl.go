package service

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"quantforge.com/internal/domain"
	"quantforge.com/internal/model"
)

// BacktestServiceImpl 实现 domain.BacktestService 接口
type BacktestServiceImpl struct {
	db       *gorm.DB
	engine   domain.EngineClient
	queue    domain.JobQueue
	cache    domain.StatusCache
	notifier domain.Notifier
	timeout  time.Duration
}

// NewBacktestService 创建回测服务
func NewBacktestService(
	db *gorm.DB,
	engine domain.EngineClient,
	queue domain.JobQueue,
	cache domain.StatusCache,
	notifier domain.Notifier,
	timeout time.Duration,
) *BacktestServiceImpl {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &BacktestServiceImpl{
		db:       db,
		engine:   engine,
		queue:    queue,
		cache:    cache,
		notifier: notifier,
		timeout:  timeout,
	}
}

// SubmitBacktest 提交回测任务；校验归属后立刻返回，不等待引擎
func (s *BacktestServiceImpl) SubmitBacktest(ctx context.Context, userID uint, in domain.SubmitBacktestInput) (*model.Backtest, error) {
	if in.Asset == "" {
		return nil, domain.NewBadRequestError("asset is required")
	}

	strategy, err := s.fetchOwnedStrategy(ctx, userID, in.StrategyID)
	if err != nil {
		return nil, err
	}
	dataset, err := s.fetchOwnedDataset(ctx, userID, in.DatasetID)
	if err != nil {
		return nil, err
	}

	initialCapital := in.InitialCapital
	if initialCapital <= 0 {
		initialCapital = 10000
	}
	commission := in.Commission
	if commission < 0 {
		return nil, domain.NewBadRequestError("commission cannot be negative")
	}
	if commission == 0 {
		commission = 0.001
	}

	backtest := &model.Backtest{
		UserID:         userID,
		StrategyID:     strategy.ID,
		DatasetID:      dataset.ID,
		Asset:          in.Asset,
		StartDate:      dataset.StartDate,
		EndDate:        dataset.EndDate,
		InitialCapital: initialCapital,
		Commission:     commission,
		Status:         model.BacktestStatusQueued,
	}
	if err := s.db.WithContext(ctx).Create(backtest).Error; err != nil {
		return nil, domain.NewInternalError("failed to create backtest", err)
	}

	s.db.WithContext(ctx).Model(&model.Strategy{}).
		Where("id = ?", strategy.ID).
		UpdateColumn("backtest_count", gorm.Expr("backtest_count + 1"))

	s.cache.SetStatus(ctx, domain.BacktestStatusView{
		ID:     backtest.ID,
		UserID: userID,
		Status: model.BacktestStatusQueued,
	})

	if err := s.queue.Enqueue(ctx, backtest.ID); err != nil {
		// Without a queue entry the job would stay queued forever.
		s.finishJob(backtest.ID, userID, model.BacktestStatusQueued, nil,
			"failed to dispatch backtest job: "+err.Error(), 0)
		return nil, domain.NewInternalError("failed to dispatch backtest job", err)
	}

	log.Printf("BacktestService: Backtest %d queued (strategy %d, dataset %d)", backtest.ID, strategy.ID, dataset.ID)
	return backtest, nil
}

// ProcessJob 处理一个出队的回测任务，终态只写入一次
func (s *BacktestServiceImpl) ProcessJob(ctx context.Context, backtestID uint) {
	// Claim the job. If another worker already did, this is a no-op.
	claim := s.db.WithContext(ctx).Model(&model.Backtest{}).
		Where("id = ? AND status = ?", backtestID, model.BacktestStatusQueued).
		Update("status", model.BacktestStatusRunning)
	if claim.Error != nil {
		log.Printf("BacktestService: failed to claim job %d: %v", backtestID, claim.Error)
		return
	}
	if claim.RowsAffected == 0 {
		log.Printf("BacktestService: job %d already claimed or missing, skipping", backtestID)
		return
	}

	var backtest model.Backtest
	if err := s.db.WithContext(ctx).First(&backtest, backtestID).Error; err != nil {
		log.Printf("BacktestService: failed to load job %d: %v", backtestID, err)
		return
	}

	s.cache.SetStatus(ctx, domain.BacktestStatusView{
		ID:     backtest.ID,
		UserID: backtest.UserID,
		Status: model.BacktestStatusRunning,
	})

	log.Printf("BacktestService: Processing backtest %d", backtestID)

	var strategy model.Strategy
	if err := s.db.WithContext(ctx).First(&strategy, backtest.StrategyID).Error; err != nil {
		s.finishJob(backtestID, backtest.UserID, model.BacktestStatusRunning, nil, "strategy no longer exists", 0)
		return
	}
	var dataset model.Dataset
	if err := s.db.WithContext(ctx).First(&dataset, backtest.DatasetID).Error; err != nil {
		s.finishJob(backtestID, backtest.UserID, model.BacktestStatusRunning, nil, "dataset no longer exists", 0)
		return
	}
	csvData, err := os.ReadFile(dataset.FilePath)
	if err != nil {
		s.finishJob(backtestID, backtest.UserID, model.BacktestStatusRunning, nil, "failed to read dataset file: "+err.Error(), 0)
		return
	}

	start := time.Now()
	engineCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, err := s.engine.RunBacktest(engineCtx, strategy.CompiledCode, csvData,
		backtest.InitialCapital, backtest.Commission)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		log.Printf("BacktestService: Backtest %d failed: %v", backtestID, err)
		s.finishJob(backtestID, backtest.UserID, model.BacktestStatusRunning, nil, err.Error(), elapsed)
		return
	}

	log.Printf("BacktestService: Backtest %d completed in %dms", backtestID, elapsed)
	s.finishJob(backtestID, backtest.UserID, model.BacktestStatusRunning, results, "", elapsed)
}

// finishJob performs the single terminal transition from fromStatus. The
// guard on the current status makes the write idempotent: a job that already
// reached a terminal state is never touched again.
func (s *BacktestServiceImpl) finishJob(backtestID, userID uint, fromStatus model.BacktestStatus, results *model.BacktestResults, errorMessage string, elapsed int64) {
	// Detached from any request context: the write-back must happen even
	// when the submitting request is long gone.
	ctx := context.Background()

	status := model.BacktestStatusCompleted
	if errorMessage != "" {
		status = model.BacktestStatusFailed
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":         status,
		"error_message":  errorMessage,
		"execution_time": elapsed,
		"completed_at":   &now,
	}
	if results != nil {
		updates["results"] = results
	}

	res := s.db.WithContext(ctx).Model(&model.Backtest{}).
		Where("id = ? AND status = ?", backtestID, fromStatus).
		Updates(updates)
	if res.Error != nil {
		log.Printf("BacktestService: failed to finish job %d: %v", backtestID, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		log.Printf("BacktestService: job %d already finished, skipping write-back", backtestID)
		return
	}

	view := domain.BacktestStatusView{
		ID:           backtestID,
		UserID:       userID,
		Status:       status,
		ErrorMessage: errorMessage,
		CompletedAt:  &now,
	}
	s.cache.SetStatus(ctx, view)
	s.notifier.NotifyUser(userID, map[string]interface{}{
		"type":        "backtest_status",
		"backtest_id": backtestID,
		"status":      status,
		"error":       errorMessage,
	})
}

// GetBacktests 获取用户回测列表
func (s *BacktestServiceImpl) GetBacktests(ctx context.Context, userID uint, page, pageSize int) ([]model.Backtest, int64, error) {
	var backtests []model.Backtest
	var total int64

	offset := (page - 1) * pageSize

	query := s.db.WithContext(ctx).Model(&model.Backtest{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to count backtests", err)
	}

	if err := query.Order("id DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&backtests).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to fetch backtests", err)
	}

	return backtests, total, nil
}

// GetBacktest 获取回测详情 (仅限所有者)
func (s *BacktestServiceImpl) GetBacktest(ctx context.Context, userID, backtestID uint) (*model.Backtest, error) {
	return s.fetchOwned(ctx, userID, backtestID)
}

// GetBacktestStatus 轻量状态查询；优先读缓存，未命中回落到数据库
func (s *BacktestServiceImpl) GetBacktestStatus(ctx context.Context, userID, backtestID uint) (*domain.BacktestStatusView, error) {
	if view, ok := s.cache.GetStatus(ctx, backtestID); ok {
		if view.UserID != userID {
			return nil, domain.NewForbiddenError("not authorized to access this backtest")
		}
		return &view, nil
	}

	backtest, err := s.fetchOwned(ctx, userID, backtestID)
	if err != nil {
		return nil, err
	}
	view := domain.BacktestStatusView{
		ID:           backtest.ID,
		UserID:       backtest.UserID,
		Status:       backtest.Status,
		ErrorMessage: backtest.ErrorMessage,
		CompletedAt:  backtest.CompletedAt,
	}
	s.cache.SetStatus(ctx, view)
	return &view, nil
}

// DeleteBacktest 删除回测记录
func (s *BacktestServiceImpl) DeleteBacktest(ctx context.Context, userID, backtestID uint) error {
	if _, err := s.fetchOwned(ctx, userID, backtestID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&model.Backtest{}, backtestID).Error; err != nil {
		return domain.NewInternalError("failed to delete backtest", err)
	}
	log.Printf("BacktestService: Backtest deleted: %d", backtestID)
	return nil
}

func (s *BacktestServiceImpl) fetchOwned(ctx context.Context, userID, backtestID uint) (*model.Backtest, error) {
	var backtest model.Backtest
	if err := s.db.WithContext(ctx).First(&backtest, backtestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("backtest not found")
		}
		return nil, domain.NewInternalError("failed to fetch backtest", err)
	}
	if backtest.UserID != userID {
		return nil, domain.NewForbiddenError("not authorized to access this backtest")
	}
	return &backtest, nil
}

func (s *BacktestServiceImpl) fetchOwnedStrategy(ctx context.Context, userID, strategyID uint) (*model.Strategy, error) {
	var strategy model.Strategy
	if err := s.db.WithContext(ctx).First(&strategy, strategyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("strategy not found")
		}
		return nil, domain.NewInternalError("failed to fetch strategy", err)
	}
	if strategy.UserID != userID {
		return nil, domain.NewForbiddenError("not authorized to use this strategy")
	}
	return &strategy, nil
}

func (s *BacktestServiceImpl) fetchOwnedDataset(ctx context.Context, userID, datasetID uint) (*model.Dataset, error) {
	var dataset model.Dataset
	if err := s.db.WithContext(ctx).First(&dataset, datasetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("dataset not found")
		}
		return nil, domain.NewInternalError("failed to fetch dataset", err)
	}
	if dataset.UserID != userID {
		return nil, domain.NewForbiddenError("not authorized to use this dataset")
	}
	return &dataset, nil
}

// 确保实现了接口
var _ domain.BacktestService = (*BacktestServiceImpl)(nil)
