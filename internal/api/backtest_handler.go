package api

import (
	"github.com/gofiber/fiber/v2"

	"quantforge.com/internal/domain"
)

// BacktestHandler 处理回测任务相关的 HTTP 请求
type BacktestHandler struct {
	backtestSvc domain.BacktestService
	engine      domain.EngineClient
}

// NewBacktestHandler 创建回测处理器
func NewBacktestHandler(backtestSvc domain.BacktestService, engine domain.EngineClient) *BacktestHandler {
	return &BacktestHandler{backtestSvc: backtestSvc, engine: engine}
}

// SubmitBacktest 提交回测任务，立即返回 queued 状态的任务
// POST /api/backtests
func (h *BacktestHandler) SubmitBacktest(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}

	var req domain.SubmitBacktestInput
	if err := c.BodyParser(&req); err != nil {
		return Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	backtest, err := h.backtestSvc.SubmitBacktest(c.Context(), userID, req)
	if err != nil {
		return handleError(c, err)
	}

	return Created(c, backtest)
}

// GetBacktests 获取当前用户的回测列表
// GET /api/backtests
func (h *BacktestHandler) GetBacktests(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	page, pageSize := parsePaging(c)

	backtests, total, err := h.backtestSvc.GetBacktests(c.Context(), userID, page, pageSize)
	if err != nil {
		return handleError(c, err)
	}

	return SendPaginatedResponse(c, backtests, page, pageSize, total)
}

// GetBacktest 获取回测详情（含结果）
// GET /api/backtests/:id
func (h *BacktestHandler) GetBacktest(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return handleError(c, err)
	}

	backtest, err := h.backtestSvc.GetBacktest(c.Context(), userID, id)
	if err != nil {
		return handleError(c, err)
	}

	return Success(c, backtest)
}

// GetBacktestStatus 轻量状态查询，前端以 3 秒间隔轮询
// GET /api/backtests/:id/status
func (h *BacktestHandler) GetBacktestStatus(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return handleError(c, err)
	}

	view, err := h.backtestSvc.GetBacktestStatus(c.Context(), userID, id)
	if err != nil {
		return handleError(c, err)
	}

	return Success(c, view)
}

// DeleteBacktest 删除回测记录
// DELETE /api/backtests/:id
func (h *BacktestHandler) DeleteBacktest(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return handleError(c, err)
	}

	if err := h.backtestSvc.DeleteBacktest(c.Context(), userID, id); err != nil {
		return handleError(c, err)
	}

	return Success(c, fiber.Map{"deleted": true})
}

// EngineHealth 探测外部执行引擎的可用性
// GET /api/engine/health
func (h *BacktestHandler) EngineHealth(c *fiber.Ctx) error {
	if err := h.engine.Health(c.Context()); err != nil {
		return Fail(c, fiber.StatusServiceUnavailable, "backtest engine is not available")
	}
	return Success(c, fiber.Map{"engine": "ok"})
}
