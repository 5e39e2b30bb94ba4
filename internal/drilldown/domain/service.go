// Package domain defines the drilldown contract: reversing an aggregate row
// back into the raw points that produced it.
package domain

import (
	"context"
	"errors"

	querydomain "github.com/pulsekit/pulse/internal/query/domain"
	"github.com/pulsekit/pulse/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

// contributorLimit rows per breakdown, by descending summed value.
const ContributorLimit = 20

// PointFilter addresses raw points directly, with the same filter vocabulary
// as the query engine but no aggregation.
type PointFilter struct {
	MetricKey string             `json:"metricKey"`
	Start     string             `json:"start,omitempty"`
	End       string             `json:"end,omitempty"`
	Filters   querydomain.Filters `json:"filters,omitempty"`
}

// RowContext carries the parts of an aggregate result row needed to derive
// its exact raw-point filter: the bucket timestamp, the entity id if the
// query grouped by entity, and the returned groupBy dimension values.
type RowContext struct {
	Bucket   string             `json:"bucket,omitempty"`
	EntityID string             `json:"entityId,omitempty"`
	GroupBy  map[string]*string `json:"groupBy,omitempty"`
}

type Request struct {
	PointFilter *PointFilter      `json:"pointFilter,omitempty"`
	BaseQuery   *querydomain.Query `json:"baseQuery,omitempty"`
	RowContext  *RowContext        `json:"rowContext,omitempty"`

	Page                pagination.Page `json:"page"`
	IncludeContributors bool            `json:"includeContributors,omitempty"`
}

// Point is the wire form of one raw metric point.
type Point struct {
	ID           string          `json:"id"`
	EntityKind   string          `json:"entityKind"`
	EntityID     string          `json:"entityId"`
	MetricKey    string          `json:"metricKey"`
	DataSourceID string          `json:"dataSourceId"`
	Date         string          `json:"date"`
	Granularity  string          `json:"granularity"`
	Value        decimal.Decimal `json:"value"`
	Dimensions   map[string]any  `json:"dimensions,omitempty"`
}

// Contributor is one row of a breakdown. Key is nil when the grouped
// dimension was absent on the contributing points.
type Contributor struct {
	Key   *string         `json:"key"`
	Value decimal.Decimal `json:"value"`
}

type DimensionBreakdown struct {
	Dimension string        `json:"dimension"`
	Top       []Contributor `json:"top"`
}

type Contributors struct {
	ByEntity     []Contributor       `json:"byEntity"`
	ByDataSource []Contributor       `json:"byDataSource"`
	ByDimension  *DimensionBreakdown `json:"byDimension,omitempty"`
}

type Response struct {
	Pagination   pagination.PageInfo `json:"pagination"`
	Points       []Point             `json:"points"`
	Contributors *Contributors       `json:"contributors,omitempty"`
}

type Service interface {
	Resolve(context.Context, Request) (*Response, error)
}

var (
	ErrMissingFilter     = errors.New("invalid_drilldown_missing_filter")
	ErrAmbiguousFilter   = errors.New("invalid_drilldown_ambiguous_filter")
	ErrMissingRowContext = errors.New("invalid_row_context")
	ErrMissingBucket     = errors.New("invalid_row_context_bucket")
	ErrMissingEntityID   = errors.New("invalid_row_context_entity_id")
	ErrMissingDimension  = errors.New("invalid_row_context_dimension")
)
