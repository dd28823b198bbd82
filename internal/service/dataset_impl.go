package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"quantforge.com/internal/domain"
	"quantforge.com/internal/model"
)

// requiredColumns are the columns the execution engine expects, with these
// exact names.
var requiredColumns = []string{"Date", "Open", "High", "Low", "Close"}

// dateLayouts tried in order when parsing the Date column.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// DatasetServiceImpl 实现 domain.DatasetService 接口
type DatasetServiceImpl struct {
	db *gorm.DB
}

// NewDatasetService 创建数据集服务
func NewDatasetService(db *gorm.DB) *DatasetServiceImpl {
	return &DatasetServiceImpl{db: db}
}

// IngestFile validates an uploaded CSV in one streaming pass and registers
// the dataset. The stored file is removed on every failure path so no
// partial state is left behind.
func (s *DatasetServiceImpl) IngestFile(ctx context.Context, userID uint, asset, filename, path string, size int64) (*model.Dataset, error) {
	if asset == "" {
		os.Remove(path)
		return nil, domain.NewBadRequestError("asset name is required")
	}

	columns, startDate, endDate, rowCount, err := scanCSV(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	dataset := &model.Dataset{
		UserID:    userID,
		Asset:     asset,
		Filename:  filename,
		FilePath:  path,
		Columns:   columns,
		StartDate: startDate,
		EndDate:   endDate,
		RowCount:  rowCount,
		FileSize:  size,
	}
	if err := s.db.WithContext(ctx).Create(dataset).Error; err != nil {
		os.Remove(path)
		return nil, domain.NewInternalError("failed to create dataset", err)
	}

	log.Printf("DatasetService: Dataset created: %d (%s, %d rows)", dataset.ID, asset, rowCount)
	return dataset, nil
}

// scanCSV streams the file once: validates the header, counts rows and
// captures the date range from the first and last data row.
func scanCSV(path string) (columns []string, startDate, endDate *time.Time, rowCount int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, 0, domain.NewInternalError("failed to open uploaded file", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, nil, 0, domain.NewBadRequestError("uploaded file is not a readable CSV")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	dateIdx := -1
	for _, required := range requiredColumns {
		found := false
		for i, col := range header {
			if col == required {
				found = true
				if required == "Date" {
					dateIdx = i
				}
				break
			}
		}
		if !found {
			return nil, nil, nil, 0, domain.NewBadRequestError(
				fmt.Sprintf("CSV must contain %s columns", strings.Join(requiredColumns, ", ")))
		}
	}

	var firstDate, lastDate string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, 0, domain.NewBadRequestError("malformed CSV row: " + err.Error())
		}
		if dateIdx < len(record) {
			if rowCount == 0 {
				firstDate = record[dateIdx]
			}
			lastDate = record[dateIdx]
		}
		rowCount++
	}

	if rowCount == 0 {
		return nil, nil, nil, 0, domain.NewBadRequestError("CSV contains no data rows")
	}

	return header, parseDate(firstDate), parseDate(lastDate), rowCount, nil
}

func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// GetDatasets 获取用户数据集列表
func (s *DatasetServiceImpl) GetDatasets(ctx context.Context, userID uint, page, pageSize int) ([]model.Dataset, int64, error) {
	var datasets []model.Dataset
	var total int64

	offset := (page - 1) * pageSize

	query := s.db.WithContext(ctx).Model(&model.Dataset{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to count datasets", err)
	}

	if err := query.Order("id DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&datasets).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to fetch datasets", err)
	}

	return datasets, total, nil
}

// GetDataset 获取数据集详情 (仅限所有者)
func (s *DatasetServiceImpl) GetDataset(ctx context.Context, userID, datasetID uint) (*model.Dataset, error) {
	return s.fetchOwned(ctx, userID, datasetID)
}

// PreviewDataset streams at most maxRows rows from the stored file without
// loading the rest of it.
func (s *DatasetServiceImpl) PreviewDataset(ctx context.Context, userID, datasetID uint, maxRows int) ([]map[string]string, error) {
	dataset, err := s.fetchOwned(ctx, userID, datasetID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(dataset.FilePath)
	if err != nil {
		return nil, domain.NewInternalError("failed to open dataset file", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, domain.NewInternalError("failed to read dataset header", err)
	}

	rows := make([]map[string]string, 0, maxRows)
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.NewInternalError("failed to read dataset row", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// DeleteDataset 删除数据集及其文件
func (s *DatasetServiceImpl) DeleteDataset(ctx context.Context, userID, datasetID uint) error {
	dataset, err := s.fetchOwned(ctx, userID, datasetID)
	if err != nil {
		return err
	}

	if dataset.FilePath != "" {
		if err := os.Remove(dataset.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("DatasetService: failed to remove file %s: %v", dataset.FilePath, err)
		}
	}

	if err := s.db.WithContext(ctx).Delete(&model.Dataset{}, datasetID).Error; err != nil {
		return domain.NewInternalError("failed to delete dataset", err)
	}

	log.Printf("DatasetService: Dataset deleted: %d", datasetID)
	return nil
}

func (s *DatasetServiceImpl) fetchOwned(ctx context.Context, userID, datasetID uint) (*model.Dataset, error) {
	var dataset model.Dataset
	if err := s.db.WithContext(ctx).First(&dataset, datasetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("dataset not found")
		}
		return nil, domain.NewInternalError("failed to fetch dataset", err)
	}
	if dataset.UserID != userID {
		return nil, domain.NewForbiddenError("not authorized to access this dataset")
	}
	return &dataset, nil
}

// 确保实现了接口
var _ domain.DatasetService = (*DatasetServiceImpl)(nil)
