package api

import (
	"github.com/gofiber/fiber/v2"

	"quantforge.com/internal/domain"
)

// StrategyHandler 处理策略相关的 HTTP 请求
type StrategyHandler struct {
	strategySvc domain.StrategyService
}

// NewStrategyHandler 创建策略处理器
func NewStrategyHandler(strategySvc domain.StrategyService) *StrategyHandler {
	return &StrategyHandler{strategySvc: strategySvc}
}

// CreateStrategy 创建策略
// POST /api/strategies
func (h *StrategyHandler) CreateStrategy(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}

	var req domain.CreateStrategyInput
	if err := c.BodyParser(&req); err != nil {
		return Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	strategy, err := h.strategySvc.CreateStrategy(c.Context(), userID, req)
	if err != nil {
		return handleError(c, err)
	}

	return Created(c, strategy)
}

// GetStrategies 获取当前用户的策略列表
// GET /api/strategies
func (h *StrategyHandler) GetStrategies(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	page, pageSize := parsePaging(c)

	strategies, total, err := h.strategySvc.GetStrategies(c.Context(), userID, page, pageSize)
	if err != nil {
		return handleError(c, err)
	}

	return SendPaginatedResponse(c, strategies, page, pageSize, total)
}

// GetStrategy 获取策略详情
// GET /api/strategies/:id
func (h *StrategyHandler) GetStrategy(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return handleError(c, err)
	}

	strategy, err := h.strategySvc.GetStrategy(c.Context(), userID, id)
	if err != nil {
		return handleError(c, err)
	}

	return Success(c, strategy)
}

// UpdateStrategy 更新策略
// PUT /api/strategies/:id
func (h *StrategyHandler) UpdateStrategy(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return handleError(c, err)
	}

	var req domain.UpdateStrategyInput
	if err := c.BodyParser(&req); err != nil {
		return Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	strategy, err := h.strategySvc.UpdateStrategy(c.Context(), userID, id, req)
	if err != nil {
		return handleError(c, err)
	}

	return Success(c, strategy)
}

// DeleteStrategy 删除策略
// DELETE /api/strategies/:id
func (h *StrategyHandler) DeleteStrategy(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return handleError(c, err)
	}

	if err := h.strategySvc.DeleteStrategy(c.Context(), userID, id); err != nil {
		return handleError(c, err)
	}

	return Success(c, fiber.Map{"deleted": true})
}
