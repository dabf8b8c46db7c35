package photos

import (
	"time"
)

// Photo is the metadata record for one photograph. The record is created by
// the upstream library sync; this service only reads it and fills in the
// analysis columns.
type Photo struct {
	ID              string     `gorm:"column:id;primaryKey;size:64"`
	UserID          string     `gorm:"column:user_id;index;size:64"`
	UpstreamImageID string     `gorm:"column:upstream_image_id;uniqueIndex;size:255"`
	Filename        string     `gorm:"column:filename;size:500"`
	MediaType       string     `gorm:"column:media_type;size:50"`
	BlurScore       *float64   `gorm:"column:blur_score;type:decimal(5,4)"`
	IsBlurred       *bool      `gorm:"column:is_blurred"`
	ProcessedAt     *time.Time `gorm:"column:processed_at"`
	CapturedAt      *time.Time `gorm:"column:captured_at"`
	BaseURL         string     `gorm:"column:base_url;type:text"`
	Width           int        `gorm:"column:width"`
	Height          int        `gorm:"column:height"`
	FileSize        int64      `gorm:"column:file_size"`
	MimeType        string     `gorm:"column:mime_type;size:100"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (Photo) TableName() string {
	return "photos"
}

// Analyzed reports whether the photo already carries a blur score.
func (p *Photo) Analyzed() bool {
	return p.BlurScore != nil && p.ProcessedAt != nil
}
