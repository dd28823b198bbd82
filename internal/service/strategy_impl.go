package service

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"quantforge.com/internal/compiler"
	"quantforge.com/internal/domain"
	"quantforge.com/internal/model"
)

// StrategyServiceImpl 实现 domain.StrategyService 接口
type StrategyServiceImpl struct {
	db *gorm.DB
}

// NewStrategyService 创建策略服务
func NewStrategyService(db *gorm.DB) *StrategyServiceImpl {
	return &StrategyServiceImpl{db: db}
}

// CreateStrategy 创建策略并生成代码
func (s *StrategyServiceImpl) CreateStrategy(ctx context.Context, userID uint, in domain.CreateStrategyInput) (*model.Strategy, error) {
	if in.Name == "" {
		return nil, domain.NewBadRequestError("strategy name is required")
	}
	timeframe := in.Timeframe
	if timeframe == "" {
		timeframe = "1d"
	}
	if !compiler.ValidTimeframe(timeframe) {
		return nil, domain.NewBadRequestError("invalid timeframe: " + in.Timeframe)
	}

	code, err := compiler.Compile(compiler.Definition{
		Indicators: in.Indicators,
		Rules:      in.Rules,
		Timeframe:  timeframe,
	})
	if err != nil {
		return nil, domain.NewBadRequestError(err.Error())
	}

	strategy := &model.Strategy{
		UserID:       userID,
		Name:         in.Name,
		Description:  in.Description,
		Timeframe:    timeframe,
		Indicators:   in.Indicators,
		Rules:        in.Rules,
		CompiledCode: code,
	}
	if err := s.db.WithContext(ctx).Create(strategy).Error; err != nil {
		return nil, domain.NewInternalError("failed to create strategy", err)
	}

	log.Printf("StrategyService: Strategy created: %d", strategy.ID)
	return strategy, nil
}

// GetStrategies 获取用户策略列表
func (s *StrategyServiceImpl) GetStrategies(ctx context.Context, userID uint, page, pageSize int) ([]model.Strategy, int64, error) {
	var strategies []model.Strategy
	var total int64

	offset := (page - 1) * pageSize

	query := s.db.WithContext(ctx).Model(&model.Strategy{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to count strategies", err)
	}

	if err := query.Order("id DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&strategies).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to fetch strategies", err)
	}

	return strategies, total, nil
}

// GetStrategy 获取策略详情 (仅限所有者)
func (s *StrategyServiceImpl) GetStrategy(ctx context.Context, userID, strategyID uint) (*model.Strategy, error) {
	return s.fetchOwned(ctx, userID, strategyID)
}

// UpdateStrategy 更新策略; 任何触及指标/规则/周期的修改都会重新编译
func (s *StrategyServiceImpl) UpdateStrategy(ctx context.Context, userID, strategyID uint, in domain.UpdateStrategyInput) (*model.Strategy, error) {
	strategy, err := s.fetchOwned(ctx, userID, strategyID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		strategy.Name = *in.Name
	}
	if in.Description != nil {
		strategy.Description = *in.Description
	}
	if in.IsPublic != nil {
		strategy.IsPublic = *in.IsPublic
	}

	recompile := false
	if in.Timeframe != nil {
		if !compiler.ValidTimeframe(*in.Timeframe) {
			return nil, domain.NewBadRequestError("invalid timeframe: " + *in.Timeframe)
		}
		strategy.Timeframe = *in.Timeframe
		recompile = true
	}
	if in.Indicators != nil {
		strategy.Indicators = in.Indicators
		recompile = true
	}
	if in.Rules != nil {
		strategy.Rules = *in.Rules
		recompile = true
	}

	if recompile {
		code, err := compiler.Compile(compiler.Definition{
			Indicators: strategy.Indicators,
			Rules:      strategy.Rules,
			Timeframe:  strategy.Timeframe,
		})
		if err != nil {
			return nil, domain.NewBadRequestError(err.Error())
		}
		strategy.CompiledCode = code
	}

	if err := s.db.WithContext(ctx).Save(strategy).Error; err != nil {
		return nil, domain.NewInternalError("failed to update strategy", err)
	}

	log.Printf("StrategyService: Strategy updated: %d (recompiled=%v)", strategy.ID, recompile)
	return strategy, nil
}

// DeleteStrategy 删除策略
func (s *StrategyServiceImpl) DeleteStrategy(ctx context.Context, userID, strategyID uint) error {
	if _, err := s.fetchOwned(ctx, userID, strategyID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&model.Strategy{}, strategyID).Error; err != nil {
		return domain.NewInternalError("failed to delete strategy", err)
	}
	log.Printf("StrategyService: Strategy deleted: %d", strategyID)
	return nil
}

// fetchOwned loads a strategy and enforces owner scoping. A strategy owned
// by another user is Forbidden, distinguished from NotFound.
func (s *StrategyServiceImpl) fetchOwned(ctx context.Context, userID, strategyID uint) (*model.Strategy, error) {
	var strategy model.Strategy
	if err := s.db.WithContext(ctx).First(&strategy, strategyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("strategy not found")
		}
		return nil, domain.NewInternalError("failed to fetch strategy", err)
	}
	if strategy.UserID != userID {
		return nil, domain.NewForbiddenError("not authorized to access this strategy")
	}
	return &strategy, nil
}

// 确保实现了接口
var _ domain.StrategyService = (*StrategyServiceImpl)(nil)
