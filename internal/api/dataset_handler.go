package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"quantforge.com/internal/config"
	"quantforge.com/internal/domain"
)

// DatasetHandler 处理数据集相关的 HTTP 请求
type DatasetHandler struct {
	datasetSvc domain.DatasetService
	uploadCfg  config.UploadConfig
}

// NewDatasetHandler 创建数据集处理器
func NewDatasetHandler(datasetSvc domain.DatasetService, uploadCfg config.UploadConfig) *DatasetHandler {
	return &DatasetHandler{datasetSvc: datasetSvc, uploadCfg: uploadCfg}
}

// UploadDataset 上传 CSV 数据集
// POST /api/datasets/upload (multipart: file, asset)
func (h *DatasetHandler) UploadDataset(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return Fail(c, fiber.StatusBadRequest, "file is required")
	}
	asset := strings.TrimSpace(c.FormValue("asset"))
	if asset == "" {
		return Fail(c, fiber.StatusBadRequest, "asset is required")
	}

	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		return Fail(c, fiber.StatusBadRequest, "only .csv files are accepted")
	}
	if h.uploadCfg.MaxFileSize > 0 && fileHeader.Size > h.uploadCfg.MaxFileSize {
		return Fail(c, fiber.StatusBadRequest,
			fmt.Sprintf("file exceeds the %d byte limit", h.uploadCfg.MaxFileSize))
	}

	if err := os.MkdirAll(h.uploadCfg.Dir, 0o755); err != nil {
		return Fail(c, fiber.StatusInternalServerError, "failed to prepare upload directory")
	}
	// Stored under a generated name; the original filename is only metadata.
	storedPath := filepath.Join(h.uploadCfg.Dir, uuid.NewString()+".csv")
	if err := c.SaveFile(fileHeader, storedPath); err != nil {
		return Fail(c, fiber.StatusInternalServerError, "failed to store uploaded file")
	}

	dataset, err := h.datasetSvc.IngestFile(c.Context(), userID, asset, fileHeader.Filename, storedPath, fileHeader.Size)
	if err != nil {
		return handleError(c, err)
	}

	return Created(c, dataset)
}

// GetDatasets 获取当前用户的数据集列表
// GET /api/datasets
func (h *DatasetHandler) GetDatasets(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	page, pageSize := parsePaging(c)

	datasets, total, err := h.datasetSvc.GetDatasets(c.Context(), userID, page, pageSize)
	if err != nil {
		return handleError(c, err)
	}

	return SendPaginatedResponse(c, datasets, page, pageSize, total)
}

// GetDataset 获取数据集详情，附带前几行预览
// GET /api/datasets/:id
func (h *DatasetHandler) GetDataset(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return handleError(c, err)
	}

	dataset, err := h.datasetSvc.GetDataset(c.Context(), userID, id)
	if err != nil {
		return handleError(c, err)
	}

	previewRows := h.uploadCfg.PreviewRows
	if previewRows <= 0 {
		previewRows = 10
	}
	preview, err := h.datasetSvc.PreviewDataset(c.Context(), userID, id, previewRows)
	if err != nil {
		return handleError(c, err)
	}

	return Success(c, fiber.Map{
		"dataset": dataset,
		"preview": preview,
	})
}

// DeleteDataset 删除数据集
// DELETE /api/datasets/:id
func (h *DatasetHandler) DeleteDataset(c *fiber.Ctx) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return handleError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return handleError(c, err)
	}

	if err := h.datasetSvc.DeleteDataset(c.Context(), userID, id); err != nil {
		return handleError(c, err)
	}

	return Success(c, fiber.Map{"deleted": true})
}
