// Package domain contains the segment model and its rule union.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Segment is a named classification rule over entities. Deactivating a
// segment makes every membership check return false without deleting it.
type Segment struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	Key        string         `gorm:"type:text;not null;uniqueIndex"`
	EntityKind string         `gorm:"type:text;not null"`
	Label      string         `gorm:"type:text;not null"`
	Rule       datatypes.JSON `gorm:"type:jsonb;not null"`
	IsActive   bool           `gorm:"not null;default:true"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Segment) TableName() string { return "metrics_segments" }
