// Package domain contains provenance records for metric ingestion: data
// sources, their sync runs, and ingest batches.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DataSource is the origin system a metric point was loaded from. Deleting a
// data source cascades to its points and sync runs.
type DataSource struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Key       string       `gorm:"type:text;not null;uniqueIndex"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DataSource) TableName() string { return "data_sources" }

// SyncRun is one execution of an ingestor against a data source.
type SyncRun struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	DataSourceID snowflake.ID `gorm:"not null;index"`
	ExternalID   string       `gorm:"type:text;not null;uniqueIndex"`
	Status       string       `gorm:"type:text;not null"`
	StartedAt    time.Time    `gorm:"not null"`
	FinishedAt   *time.Time
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SyncRun) TableName() string { return "sync_runs" }

const (
	SyncRunStatusRunning   = "running"
	SyncRunStatusCompleted = "completed"
	SyncRunStatusFailed    = "failed"
)

// IngestBatch records one call to the ingest endpoint, keeping the
// received-vs-ingested counts that make silent point drops observable.
type IngestBatch struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	ExternalID string       `gorm:"type:text;not null;uniqueIndex"`
	Source     string       `gorm:"type:text"`
	Received   int          `gorm:"not null"`
	Ingested   int          `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (IngestBatch) TableName() string { return "ingest_batches" }
