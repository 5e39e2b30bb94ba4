// Package domain contains persistence models for raw metric point ingestion.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MetricPoint stores one observation of a metric for an entity. Its upsert
// identity is (data_source_id, metric_key, date, granularity,
// dimensions_hash); every other field is mutable on conflict.
type MetricPoint struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	EntityKind     string            `gorm:"type:text;not null"`
	EntityID       string            `gorm:"type:text;not null;index"`
	MetricKey      string            `gorm:"type:text;not null;uniqueIndex:idx_metric_points_identity,priority:2"`
	DataSourceID   snowflake.ID      `gorm:"not null;uniqueIndex:idx_metric_points_identity,priority:1"`
	SyncRunID      *snowflake.ID     `gorm:"index"`
	IngestBatchID  *snowflake.ID     `gorm:"index"`
	Date           time.Time         `gorm:"not null;uniqueIndex:idx_metric_points_identity,priority:3"`
	Granularity    string            `gorm:"type:text;not null;uniqueIndex:idx_metric_points_identity,priority:4"`
	Value          decimal.Decimal   `gorm:"type:numeric;not null"`
	Dimensions     datatypes.JSONMap `gorm:"type:jsonb"`
	DimensionsHash string            `gorm:"type:text;not null;uniqueIndex:idx_metric_points_identity,priority:5"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MetricPoint) TableName() string { return "metric_points" }
