package model

import (
	"time"

	"gorm.io/gorm"
)

// BacktestStatus defines the lifecycle status of a backtest job.
type BacktestStatus string

const (
	BacktestStatusQueued    BacktestStatus = "queued"
	BacktestStatusRunning   BacktestStatus = "running"
	BacktestStatusCompleted BacktestStatus = "completed"
	BacktestStatusFailed    BacktestStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s BacktestStatus) Terminal() bool {
	return s == BacktestStatusCompleted || s == BacktestStatusFailed
}

// Backtest is one simulation job. Created in `queued`, moved to `running`
// when dispatched to the execution engine, and finished exactly once as
// `completed` (Results set) or `failed` (ErrorMessage set). Never retried
// automatically.
type Backtest struct {
	gorm.Model
	UserID     uint `gorm:"index" json:"user_id"`
	StrategyID uint `gorm:"index" json:"strategy_id"`
	DatasetID  uint `json:"dataset_id"`

	// Input parameters
	Asset          string     `json:"asset"`
	StartDate      *time.Time `json:"start_date"` // snapshot of the dataset range
	EndDate        *time.Time `json:"end_date"`
	InitialCapital float64    `gorm:"default:10000" json:"initial_capital"`
	Commission     float64    `gorm:"default:0.001" json:"commission"`

	Status BacktestStatus `gorm:"index;default:'queued'" json:"status"`

	Results      *BacktestResults `gorm:"serializer:json;type:jsonb" json:"results,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`

	// Wall-clock engine execution time in milliseconds
	ExecutionTime int64      `json:"execution_time"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// BacktestResults mirrors the execution engine's JSON results object.
type BacktestResults struct {
	FinalEquity      float64 `json:"finalEquity"`
	TotalReturn      float64 `json:"totalReturn"`
	TotalReturnPct   float64 `json:"totalReturnPct"`
	SharpeRatio      float64 `json:"sharpeRatio"`
	SortinoRatio     float64 `json:"sortinoRatio"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	MaxDrawdownPct   float64 `json:"maxDrawdownPct"`
	WinRate          float64 `json:"winRate"`
	TotalTrades      int     `json:"totalTrades"`
	WinningTrades    int     `json:"winningTrades"`
	LosingTrades     int     `json:"losingTrades"`
	ProfitFactor     float64 `json:"profitFactor"`
	AvgWin           float64 `json:"avgWin"`
	AvgLoss          float64 `json:"avgLoss"`
	LargestWin       float64 `json:"largestWin"`
	LargestLoss      float64 `json:"largestLoss"`
	AvgTradeDuration float64 `json:"avgTradeDuration"`

	EquityCurve   []CurvePoint  `json:"equityCurve"`
	DrawdownCurve []CurvePoint  `json:"drawdownCurve"`
	Trades        []TradeRecord `json:"trades"`
}

// CurvePoint is one sample of the equity or drawdown series.
type CurvePoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// TradeRecord is one simulated trade. The engine emits null for fields it
// could not determine, hence the pointers.
type TradeRecord struct {
	EntryDate  *string  `json:"entryDate"`
	ExitDate   *string  `json:"exitDate"`
	EntryPrice *float64 `json:"entryPrice"`
	ExitPrice  *float64 `json:"exitPrice"`
	Size       *float64 `json:"size"`
	PnL        *float64 `json:"pnl"`
	PnLPct     *float64 `json:"pnlPct"`
	Type       string   `json:"type"` // "long" or "short"
	Duration   *int64   `json:"duration"`
}
