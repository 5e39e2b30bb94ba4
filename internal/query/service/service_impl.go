package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pulsekit/pulse/internal/metricsql"
	querydomain "github.com/pulsekit/pulse/internal/query/domain"
	"github.com/pulsekit/pulse/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// batchConcurrency bounds how many batch queries hit the pool at once.
const batchConcurrency = 8

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *telemetry.Metrics
}

func NewService(p Params) querydomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("query.service"),
		metrics: p.Metrics,
	}
}

// plan is a fully validated query ready to execute.
type plan struct {
	agg       metricsql.Agg
	bucket    metricsql.Bucket
	groupBy   []string
	byEntity  bool
	filter    querydomain.CompiledFilter
	sql       string
	args      []any
	selectCnt int
}

func (s *Service) Run(ctx context.Context, q querydomain.Query) (*querydomain.Result, error) {
	result, err := s.run(ctx, q)
	if s.metrics != nil {
		s.metrics.RecordQuery(strings.TrimSpace(q.Agg), err)
	}
	return result, err
}

func (s *Service) run(ctx context.Context, q querydomain.Query) (*querydomain.Result, error) {
	p, err := s.compile(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.WithContext(ctx).Raw(p.sql, p.args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data := make([]querydomain.Row, 0, 16)
	for rows.Next() {
		row, err := scanRow(rows, p)
		if err != nil {
			return nil, err
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &querydomain.Result{
		Data: data,
		Meta: querydomain.Meta{
			MetricKey: strings.TrimSpace(q.MetricKey),
			Agg:       string(p.agg),
			Bucket:    bucketMeta(p.bucket),
			Rows:      len(data),
		},
	}, nil
}

// RunBatch executes up to MaxBatchQueries independent queries concurrently.
// Result slots keep the input order; a failure stays confined to its slot.
func (s *Service) RunBatch(ctx context.Context, queries []querydomain.Query) ([]querydomain.BatchResult, error) {
	if len(queries) > querydomain.MaxBatchQueries {
		return nil, querydomain.ErrTooManyQueries
	}

	results := make([]querydomain.BatchResult, len(queries))
	sem := make(chan struct{}, batchConcurrency)
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(slot int, q querydomain.Query) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := s.Run(ctx, q)
			if err != nil {
				results[slot] = querydomain.BatchResult{Error: err.Error()}
				return
			}
			results[slot] = querydomain.BatchResult{Result: result}
		}(i, q)
	}
	wg.Wait()

	return results, nil
}

// reservedAliases are column names the compiled statement claims for its own
// projection. A dimension key reusing one would shadow that column.
var reservedAliases = map[string]bool{
	"bucket":    true,
	"value":     true,
	"entity_id": true,
	"rn":        true,
}

func (s *Service) compile(q querydomain.Query) (*plan, error) {
	agg, ok := metricsql.ParseAgg(q.Agg)
	if !ok {
		return nil, querydomain.ErrInvalidAgg
	}
	bucket, ok := metricsql.ParseBucket(q.Bucket)
	if !ok {
		return nil, querydomain.ErrInvalidBucket
	}

	start, end, err := parseRange(q.Start, q.End, bucket)
	if err != nil {
		return nil, err
	}

	dialect := s.db.Dialector.Name()
	filter, err := q.Filters.Compile(dialect, q.MetricKey, start, end)
	if err != nil {
		return nil, err
	}

	p := &plan{
		agg:      agg,
		bucket:   bucket,
		groupBy:  q.GroupBy,
		byEntity: q.GroupByEntityID,
		filter:   filter,
	}

	// Non-aggregate select expressions, in output order: bucket, entity_id,
	// then groupBy dimensions in declaration order.
	var selects, groups, orders []string
	if bucket != metricsql.BucketNone {
		expr, err := metricsql.BucketExpr(dialect, bucket)
		if err != nil {
			return nil, querydomain.ErrInvalidBucket
		}
		selects = append(selects, fmt.Sprintf("%s AS bucket", expr))
		groups = append(groups, expr)
		orders = append(orders, "bucket")
	}
	if q.GroupByEntityID {
		selects = append(selects, "entity_id")
		groups = append(groups, "entity_id")
		orders = append(orders, "entity_id")
	}
	for _, key := range q.GroupBy {
		if reservedAliases[key] {
			return nil, querydomain.ErrInvalidDimensionKey
		}
		expr, err := metricsql.DimensionExpr(dialect, key)
		if err != nil {
			return nil, querydomain.ErrInvalidDimensionKey
		}
		selects = append(selects, fmt.Sprintf("%s AS %s", expr, key))
		groups = append(groups, expr)
		orders = append(orders, key)
	}
	p.selectCnt = len(selects)

	if agg == metricsql.AggLast {
		p.sql, p.args = buildLastSQL(selects, groups, orders, filter)
		return p, nil
	}

	aggExpr, err := metricsql.AggExpr(agg)
	if err != nil {
		return nil, querydomain.ErrInvalidAgg
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(append(append([]string{}, selects...), fmt.Sprintf("%s AS value", aggExpr)), ", "))
	b.WriteString(" FROM metric_points WHERE ")
	b.WriteString(filter.Where())
	if len(groups) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(groups, ", "))
	}
	if len(orders) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orders, ", "))
	}

	p.sql = b.String()
	p.args = filter.Args
	return p, nil
}

// buildLastSQL wraps the shared rank-and-filter window: the newest row per
// partition is the partition's value.
func buildLastSQL(selects, groups, orders []string, filter querydomain.CompiledFilter) (string, []any) {
	inner := append(append([]string{}, selects...),
		"value AS value",
		fmt.Sprintf("%s AS rn", metricsql.RowNumberExpr(groups)),
	)

	outer := make([]string, 0, len(selects)+1)
	if len(orders) == 0 {
		outer = append(outer, "value")
	} else {
		outer = append(outer, orders...)
		outer = append(outer, "value")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(outer, ", "))
	b.WriteString(" FROM (SELECT ")
	b.WriteString(strings.Join(inner, ", "))
	b.WriteString(" FROM metric_points WHERE ")
	b.WriteString(filter.Where())
	b.WriteString(") ranked WHERE rn = 1")
	if len(orders) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orders, ", "))
	}
	return b.String(), filter.Args
}

func parseRange(rawStart, rawEnd string, bucket metricsql.Bucket) (*time.Time, *time.Time, error) {
	start, err := parseOptionalTime(rawStart)
	if err != nil {
		return nil, nil, querydomain.ErrInvalidRange
	}
	end, err := parseOptionalTime(rawEnd)
	if err != nil {
		return nil, nil, querydomain.ErrInvalidRange
	}

	if bucket != metricsql.BucketNone {
		if start == nil || end == nil {
			return nil, nil, querydomain.ErrMissingRange
		}
		if !end.After(*start) {
			return nil, nil, querydomain.ErrInvalidRange
		}
	} else if start != nil && end != nil && !end.After(*start) {
		return nil, nil, querydomain.ErrInvalidRange
	}

	return start, end, nil
}

func parseOptionalTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := metricsql.ParseBucketTime(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func bucketMeta(bucket metricsql.Bucket) string {
	if bucket == metricsql.BucketNone {
		return ""
	}
	return string(bucket)
}
