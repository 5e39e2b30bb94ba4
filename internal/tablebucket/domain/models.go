// Package domain contains the table bucket model: an ordered segment rule
// layered onto one table column.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TableBucket binds a segment to a (table, column) slot. SortOrder is the
// evaluation priority; lower runs first.
type TableBucket struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TableID    string       `gorm:"type:text;not null;uniqueIndex:idx_table_buckets_slot,priority:1"`
	ColumnKey  string       `gorm:"type:text;not null;uniqueIndex:idx_table_buckets_slot,priority:2"`
	SortOrder  int          `gorm:"not null;uniqueIndex:idx_table_buckets_slot,priority:3"`
	EntityKind string       `gorm:"type:text;not null"`
	SegmentKey string       `gorm:"type:text;not null"`
	Label      string       `gorm:"type:text;not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TableBucket) TableName() string { return "metrics_table_buckets" }
