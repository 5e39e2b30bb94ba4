package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// PointInput is one point as submitted by an ingestor. Malformed entries are
// dropped from the batch, not rejected, so bulk loads survive occasional bad
// rows; callers monitor loss via ingested-vs-received counts.
type PointInput struct {
	EntityKind   string          `json:"entityKind"`
	EntityID     string          `json:"entityId"`
	MetricKey    string          `json:"metricKey"`
	DataSourceID string          `json:"dataSourceId"`
	Date         string          `json:"date"`
	Granularity  string          `json:"granularity"`
	Value        decimal.Decimal `json:"value"`
	Dimensions   map[string]any  `json:"dimensions"`
}

type UpsertRequest struct {
	Points    []PointInput `json:"points"`
	SyncRunID string       `json:"syncRunId"`
	Source    string       `json:"source"`
}

type UpsertResult struct {
	Received int    `json:"received"`
	Ingested int    `json:"ingested"`
	BatchID  string `json:"batchId"`
}

type Service interface {
	Upsert(context.Context, UpsertRequest) (UpsertResult, error)
}

var (
	ErrEmptyBatch        = errors.New("invalid_points")
	ErrInvalidSyncRun    = errors.New("invalid_sync_run")
	ErrInvalidDataSource = errors.New("invalid_data_source")
)
