package service

import (
	"context"
	"strings"
	"testing"

	"quantforge.com/internal/compiler"
	"quantforge.com/internal/domain"
)

func rsiStrategyInput(name string) domain.CreateStrategyInput {
	threshold := 30.0
	exitThreshold := 70.0
	return domain.CreateStrategyInput{
		Name: name,
		Indicators: []compiler.Indicator{
			{Kind: compiler.KindRSI, Params: compiler.RSIParams{Period: 14}},
		},
		Rules: compiler.RuleSet{
			Entry: []compiler.Rule{
				{Subject: "rsi_0", Operator: compiler.OpCrossesAbove, Value: &threshold},
			},
			Exit: []compiler.Rule{
				{Subject: "rsi_0", Operator: compiler.OpGreaterThan, Value: &exitThreshold},
			},
		},
	}
}

func TestCreateStrategyPersistsCompiledCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewStrategyService(db)

	strategy, err := svc.CreateStrategy(context.Background(), 1, rsiStrategyInput("RSI Reversal"))
	if err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	if strategy.ID == 0 {
		t.Fatal("expected a persisted ID")
	}
	if strategy.Timeframe != "1d" {
		t.Errorf("expected default timeframe 1d, got %q", strategy.Timeframe)
	}
	if !strings.Contains(strategy.CompiledCode, "class CustomStrategy(Strategy):") {
		t.Error("compiled code missing strategy class")
	}
	if !strings.Contains(strategy.CompiledCode, "RSIIndicator") {
		t.Error("compiled code missing RSI initialization")
	}

	stored, err := svc.GetStrategy(context.Background(), 1, strategy.ID)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if stored.CompiledCode != strategy.CompiledCode {
		t.Error("stored compiled code differs from returned one")
	}
	if len(stored.Indicators) != 1 || stored.Indicators[0].Kind != compiler.KindRSI {
		t.Errorf("indicators not round-tripped: %+v", stored.Indicators)
	}
}

func TestCreateStrategyRejectsInvalidInput(t *testing.T) {
	db := newTestDB(t)
	svc := NewStrategyService(db)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*domain.CreateStrategyInput)
	}{
		{"empty name", func(in *domain.CreateStrategyInput) { in.Name = "" }},
		{"bad timeframe", func(in *domain.CreateStrategyInput) { in.Timeframe = "2h" }},
		{"no indicators", func(in *domain.CreateStrategyInput) { in.Indicators = nil }},
		{"no entry rules", func(in *domain.CreateStrategyInput) { in.Rules.Entry = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := rsiStrategyInput("Broken")
			tt.mutate(&in)
			if _, err := svc.CreateStrategy(ctx, 1, in); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	var count int64
	db.Table("strategies").Count(&count)
	if count != 0 {
		t.Errorf("expected no strategies persisted, got %d", count)
	}
}

func TestUpdateStrategyRecompiles(t *testing.T) {
	db := newTestDB(t)
	svc := NewStrategyService(db)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, 1, rsiStrategyInput("RSI Reversal"))
	if err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	before := strategy.CompiledCode

	// A name-only update must not regenerate code.
	name := "Renamed"
	updated, err := svc.UpdateStrategy(ctx, 1, strategy.ID, domain.UpdateStrategyInput{Name: &name})
	if err != nil {
		t.Fatalf("UpdateStrategy name: %v", err)
	}
	if updated.CompiledCode != before {
		t.Error("name-only update regenerated code")
	}

	// Swapping the indicator must regenerate it.
	updated, err = svc.UpdateStrategy(ctx, 1, strategy.ID, domain.UpdateStrategyInput{
		Indicators: []compiler.Indicator{
			{Kind: compiler.KindEMA, Params: compiler.EMAParams{Period: 21}},
		},
		Rules: &compiler.RuleSet{
			Entry: []compiler.Rule{
				{Subject: "close", Operator: compiler.OpCrossesAbove, Compare: "ema_0"},
			},
		},
	})
	if err != nil {
		t.Fatalf("UpdateStrategy indicators: %v", err)
	}
	if updated.CompiledCode == before {
		t.Error("indicator update did not regenerate code")
	}
	if !strings.Contains(updated.CompiledCode, "EMAIndicator") {
		t.Error("regenerated code missing EMA initialization")
	}
	if strings.Contains(updated.CompiledCode, "RSIIndicator") {
		t.Error("regenerated code still references the removed RSI")
	}
}

func TestStrategyOwnerScoping(t *testing.T) {
	db := newTestDB(t)
	svc := NewStrategyService(db)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, 1, rsiStrategyInput("Mine"))
	if err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}

	if _, err := svc.GetStrategy(ctx, 2, strategy.ID); err == nil {
		t.Error("expected cross-owner read to fail")
	} else if appErr, ok := err.(*domain.AppError); !ok || appErr.Code != 403 {
		t.Errorf("expected 403, got %v", err)
	}

	if err := svc.DeleteStrategy(ctx, 2, strategy.ID); err == nil {
		t.Error("expected cross-owner delete to fail")
	}

	if _, err := svc.GetStrategy(ctx, 1, 999); err == nil {
		t.Error("expected missing strategy to fail")
	} else if appErr, ok := err.(*domain.AppError); !ok || appErr.Code != 404 {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestStrategyPagination(t *testing.T) {
	db := newTestDB(t)
	svc := NewStrategyService(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.CreateStrategy(ctx, 1, rsiStrategyInput("S")); err != nil {
			t.Fatalf("CreateStrategy: %v", err)
		}
	}
	if _, err := svc.CreateStrategy(ctx, 2, rsiStrategyInput("Other")); err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}

	page, total, err := svc.GetStrategies(ctx, 1, 1, 2)
	if err != nil {
		t.Fatalf("GetStrategies: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(page) != 2 {
		t.Errorf("expected 2 rows, got %d", len(page))
	}
	// Newest first.
	if len(page) == 2 && page[0].ID < page[1].ID {
		t.Error("expected descending ID order")
	}
}
