// Package domain defines the declarative aggregation query contract.
package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// MaxEntityIDFilter bounds the entityIds filter list.
const MaxEntityIDFilter = 1000

// MaxBatchQueries bounds one batch request.
const MaxBatchQueries = 200

// Filters is the shared raw-point filter vocabulary, used verbatim by the
// drilldown resolver. A nil value in Dimensions filters for dimension IS
// NULL; a non-nil value filters for equality.
type Filters struct {
	EntityKind        string             `json:"entityKind,omitempty"`
	EntityID          string             `json:"entityId,omitempty"`
	EntityIDs         []string           `json:"entityIds,omitempty"`
	DataSourceID      string             `json:"dataSourceId,omitempty"`
	SourceGranularity string             `json:"sourceGranularity,omitempty"`
	Dimensions        map[string]*string `json:"dimensions,omitempty"`
}

// Query describes one aggregation in a single SQL round trip.
type Query struct {
	MetricKey       string   `json:"metricKey"`
	Start           string   `json:"start,omitempty"`
	End             string   `json:"end,omitempty"`
	Bucket          string   `json:"bucket,omitempty"`
	Agg             string   `json:"agg"`
	Filters         Filters  `json:"filters,omitempty"`
	GroupBy         []string `json:"groupBy,omitempty"`
	GroupByEntityID bool     `json:"groupByEntityId,omitempty"`
}

// Row is one aggregate result row. GroupBy dimension values are flattened
// into the JSON object next to bucket/entityId/value.
type Row struct {
	Bucket   string             `json:"-"`
	EntityID string             `json:"-"`
	GroupBy  map[string]*string `json:"-"`
	Value    decimal.Decimal    `json:"-"`
}

type Meta struct {
	MetricKey string `json:"metricKey"`
	Agg       string `json:"agg"`
	Bucket    string `json:"bucket,omitempty"`
	Rows      int    `json:"rows"`
}

type Result struct {
	Data []Row `json:"data"`
	Meta Meta  `json:"meta"`
}

// BatchResult is one slot of a batch response. Exactly one of Result or
// Error is set; a failing query never aborts its siblings.
type BatchResult struct {
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

type Service interface {
	Run(context.Context, Query) (*Result, error)
	RunBatch(context.Context, []Query) ([]BatchResult, error)
}

var (
	ErrInvalidMetricKey    = errors.New("invalid_metric_key")
	ErrInvalidAgg          = errors.New("invalid_agg")
	ErrInvalidBucket       = errors.New("invalid_bucket")
	ErrInvalidGranularity  = errors.New("invalid_granularity")
	ErrMissingRange        = errors.New("invalid_range_missing")
	ErrInvalidRange        = errors.New("invalid_range")
	ErrInvalidDimensionKey = errors.New("invalid_dimension_key")
	ErrTooManyEntityIDs    = errors.New("invalid_entity_ids_over_limit")
	ErrTooManyQueries      = errors.New("invalid_batch_over_limit")
)
