package model

import (
	"gorm.io/gorm"

	"quantforge.com/internal/compiler"
)

// Strategy is a user-defined rule strategy together with its compiled output.
// CompiledCode is derived from Indicators/Rules/Timeframe and regenerated by
// the service layer on every mutation that touches them; it is never edited
// directly.
type Strategy struct {
	gorm.Model
	UserID      uint   `gorm:"index" json:"user_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Timeframe of the bars the strategy is evaluated on (1m .. 1w)
	Timeframe string `gorm:"default:'1d'" json:"timeframe"`

	// Ordered indicator sequence; position determines generated identifiers
	Indicators []compiler.Indicator `gorm:"serializer:json;type:jsonb" json:"indicators"`

	// Entry/exit conditions with their group logic
	Rules compiler.RuleSet `gorm:"serializer:json;type:jsonb" json:"rules"`

	// Generated strategy source text
	CompiledCode string `gorm:"type:text" json:"compiled_code"`

	IsPublic      bool `gorm:"default:false" json:"is_public"`
	BacktestCount int  `gorm:"default:0" json:"backtest_count"`
}
