package api

import (
	"errors"
	"log"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"quantforge.com/internal/domain"
)

// Pagination 元数据结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"totalPage"`
}

// ListResponse 统一的分页响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// Success 发送统一成功响应
func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// Created 发送 201 成功响应
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

// Fail 发送统一错误响应
func Fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": message})
}

// handleError maps service errors to HTTP responses. AppError carries its
// own status code; anything else is a generic 500 so internals never leak.
func handleError(c *fiber.Ctx, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		if appErr.Code >= 500 {
			log.Printf("API: internal error on %s %s: %v", c.Method(), c.Path(), err)
		}
		return Fail(c, appErr.Code, appErr.Message)
	}
	log.Printf("API: unexpected error on %s %s: %v", c.Method(), c.Path(), err)
	return Fail(c, fiber.StatusInternalServerError, "internal server error")
}

// SendPaginatedResponse 发送标准的分页响应
func SendPaginatedResponse(c *fiber.Ctx, items interface{}, page, pageSize int, total int64) error {
	totalPage := 0
	if pageSize > 0 {
		totalPage = int(math.Ceil(float64(total) / float64(pageSize)))
	}

	return Success(c, ListResponse{
		Items: items,
		Pagination: Pagination{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	})
}

// parsePaging reads page/pageSize query params with the usual clamping.
func parsePaging(c *fiber.Ctx) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	pageSize, _ = strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// userIDFromCtx reads the authenticated user's ID injected by the middleware.
func userIDFromCtx(c *fiber.Ctx) (uint, error) {
	v := c.Locals("user_id")
	switch id := v.(type) {
	case uint:
		return id, nil
	case float64:
		return uint(id), nil
	}
	return 0, domain.NewForbiddenError("missing authenticated user")
}

// paramID parses a numeric :id path parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, domain.NewBadRequestError("invalid " + name)
	}
	return uint(id), nil
}
