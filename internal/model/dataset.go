package model

import (
	"time"

	"gorm.io/gorm"
)

// Dataset records an uploaded historical-price file. Immutable after upload
// except for deletion.
type Dataset struct {
	gorm.Model
	UserID   uint   `gorm:"index" json:"user_id"`
	Asset    string `gorm:"index;not null" json:"asset"`
	Filename string `json:"filename"`
	FilePath string `json:"-"`

	Columns   []string   `gorm:"serializer:json" json:"columns"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	RowCount  int64      `json:"row_count"`
	FileSize  int64      `json:"file_size"`
}
