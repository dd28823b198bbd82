package domain

import (
	"context"
	"time"

	"quantforge.com/internal/compiler"
	"quantforge.com/internal/model"
)

// ===========================
// 策略服务接口
// ===========================

// CreateStrategyInput carries the fields accepted on strategy creation.
type CreateStrategyInput struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Timeframe   string               `json:"timeframe"`
	Indicators  []compiler.Indicator `json:"indicators"`
	Rules       compiler.RuleSet     `json:"rules"`
}

// UpdateStrategyInput carries a partial update; nil fields are left as-is.
// Touching Indicators, Rules or Timeframe triggers recompilation.
type UpdateStrategyInput struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Timeframe   *string              `json:"timeframe"`
	Indicators  []compiler.Indicator `json:"indicators"`
	Rules       *compiler.RuleSet    `json:"rules"`
	IsPublic    *bool                `json:"is_public"`
}

// StrategyService 定义策略相关的业务操作
type StrategyService interface {
	CreateStrategy(ctx context.Context, userID uint, in CreateStrategyInput) (*model.Strategy, error)
	GetStrategies(ctx context.Context, userID uint, page, pageSize int) ([]model.Strategy, int64, error)
	GetStrategy(ctx context.Context, userID, strategyID uint) (*model.Strategy, error)
	UpdateStrategy(ctx context.Context, userID, strategyID uint, in UpdateStrategyInput) (*model.Strategy, error)
	DeleteStrategy(ctx context.Context, userID, strategyID uint) error
}

// ===========================
// 数据集服务接口
// ===========================

// DatasetService 定义历史数据集相关的业务操作
type DatasetService interface {
	// IngestFile validates and registers an already-saved upload; the file
	// is removed again when validation fails.
	IngestFile(ctx context.Context, userID uint, asset, filename, path string, size int64) (*model.Dataset, error)
	GetDatasets(ctx context.Context, userID uint, page, pageSize int) ([]model.Dataset, int64, error)
	GetDataset(ctx context.Context, userID, datasetID uint) (*model.Dataset, error)
	// PreviewDataset streams at most maxRows rows from the stored file.
	PreviewDataset(ctx context.Context, userID, datasetID uint, maxRows int) ([]map[string]string, error)
	DeleteDataset(ctx context.Context, userID, datasetID uint) error
}

// ===========================
// 回测服务接口
// ===========================

// SubmitBacktestInput carries the parameters of a backtest submission.
type SubmitBacktestInput struct {
	StrategyID     uint    `json:"strategy_id"`
	DatasetID      uint    `json:"dataset_id"`
	Asset          string  `json:"asset"`
	InitialCapital float64 `json:"initial_capital"`
	Commission     float64 `json:"commission"`
}

// BacktestStatusView is the lightweight status read served to polling
// clients; it is also the value cached between poll intervals.
type BacktestStatusView struct {
	ID           uint                 `json:"id"`
	UserID       uint                 `json:"-"`
	Status       model.BacktestStatus `json:"status"`
	ErrorMessage string               `json:"error_message,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// BacktestService 定义回测任务相关的业务操作
type BacktestService interface {
	// SubmitBacktest validates ownership of both referenced entities,
	// creates the job in `queued` and enqueues it. It never blocks on the
	// engine call.
	SubmitBacktest(ctx context.Context, userID uint, in SubmitBacktestInput) (*model.Backtest, error)
	GetBacktests(ctx context.Context, userID uint, page, pageSize int) ([]model.Backtest, int64, error)
	GetBacktest(ctx context.Context, userID, backtestID uint) (*model.Backtest, error)
	GetBacktestStatus(ctx context.Context, userID, backtestID uint) (*BacktestStatusView, error)
	DeleteBacktest(ctx context.Context, userID, backtestID uint) error

	// ProcessJob runs one dequeued job to a terminal state. The terminal
	// write happens exactly once even if the job was claimed elsewhere.
	ProcessJob(ctx context.Context, backtestID uint)
}

// ===========================
// 外部引擎接口
// ===========================

// EngineClient 定义与外部回测执行引擎通信的接口
type EngineClient interface {
	RunBacktest(ctx context.Context, strategyCode string, csvData []byte, initialCapital, commission float64) (*model.BacktestResults, error)
	Health(ctx context.Context) error
}

// ===========================
// 任务调度接口
// ===========================

// JobQueue dispatches queued backtest job IDs to the worker loop.
type JobQueue interface {
	Enqueue(ctx context.Context, backtestID uint) error
	// Dequeue blocks up to timeout; ok is false when the queue stayed empty.
	Dequeue(ctx context.Context, timeout time.Duration) (backtestID uint, ok bool, err error)
}

// StatusCache holds recent job status views so the 3-second polling
// endpoint does not hit the database on every read.
type StatusCache interface {
	SetStatus(ctx context.Context, view BacktestStatusView)
	GetStatus(ctx context.Context, backtestID uint) (BacktestStatusView, bool)
}

// ===========================
// 推送接口
// ===========================

// Notifier 定义推送通知的接口
type Notifier interface {
	// NotifyUser delivers a payload to every open connection of a user.
	NotifyUser(userID uint, payload interface{})
}
