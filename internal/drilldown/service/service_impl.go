package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	drilldowndomain "github.com/pulsekit/pulse/internal/drilldown/domain"
	"github.com/pulsekit/pulse/internal/metricsql"
	pointdomain "github.com/pulsekit/pulse/internal/point/domain"
	querydomain "github.com/pulsekit/pulse/internal/query/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) drilldowndomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("drilldown.service"),
	}
}

// resolvedFilter is the point filter a request boils down to, in either
// entry mode, plus the dimension eligible for a contributor breakdown.
type resolvedFilter struct {
	compiled     querydomain.CompiledFilter
	breakdownDim string
}

func (s *Service) Resolve(ctx context.Context, req drilldowndomain.Request) (*drilldowndomain.Response, error) {
	resolved, err := s.resolveFilter(req)
	if err != nil {
		return nil, err
	}

	page := req.Page.Normalize()
	where := resolved.compiled.Where()

	var total int64
	if err := s.db.WithContext(ctx).
		Table("metric_points").
		Where(where, resolved.compiled.Args...).
		Count(&total).Error; err != nil {
		return nil, err
	}

	var points []pointdomain.MetricPoint
	if err := s.db.WithContext(ctx).
		Table("metric_points").
		Where(where, resolved.compiled.Args...).
		Order("date DESC, id DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Find(&points).Error; err != nil {
		return nil, err
	}

	resp := &drilldowndomain.Response{
		Pagination: page.Info(total),
		Points:     toWirePoints(points),
	}

	if req.IncludeContributors {
		contributors, err := s.contributors(ctx, resolved)
		if err != nil {
			return nil, err
		}
		resp.Contributors = contributors
	}

	return resp, nil
}

// resolveFilter accepts exactly one entry mode: a direct point filter, or a
// base query plus the context of the clicked row.
func (s *Service) resolveFilter(req drilldowndomain.Request) (*resolvedFilter, error) {
	switch {
	case req.PointFilter != nil && req.BaseQuery != nil:
		return nil, drilldowndomain.ErrAmbiguousFilter
	case req.PointFilter != nil:
		return s.resolveDirect(*req.PointFilter)
	case req.BaseQuery != nil:
		if req.RowContext == nil {
			return nil, drilldowndomain.ErrMissingRowContext
		}
		return s.resolveDerived(*req.BaseQuery, *req.RowContext)
	default:
		return nil, drilldowndomain.ErrMissingFilter
	}
}

func (s *Service) resolveDirect(pf drilldowndomain.PointFilter) (*resolvedFilter, error) {
	start, err := parseOptionalTime(pf.Start)
	if err != nil {
		return nil, querydomain.ErrInvalidRange
	}
	end, err := parseOptionalTime(pf.End)
	if err != nil {
		return nil, querydomain.ErrInvalidRange
	}
	if start != nil && end != nil && !end.After(*start) {
		return nil, querydomain.ErrInvalidRange
	}

	compiled, err := pf.Filters.Compile(s.db.Dialector.Name(), pf.MetricKey, start, end)
	if err != nil {
		return nil, err
	}
	return &resolvedFilter{compiled: compiled}, nil
}

// resolveDerived reconstructs the exact raw-point filter behind one aggregate
// row: the time range narrows to one bucket-width window, the entity id is
// pinned when the query grouped by entity, and every groupBy dimension is
// pinned to the value the row returned.
func (s *Service) resolveDerived(base querydomain.Query, row drilldowndomain.RowContext) (*resolvedFilter, error) {
	bucket, ok := metricsql.ParseBucket(base.Bucket)
	if !ok {
		return nil, querydomain.ErrInvalidBucket
	}

	var start, end *time.Time
	if bucket != metricsql.BucketNone {
		if strings.TrimSpace(row.Bucket) == "" {
			return nil, drilldowndomain.ErrMissingBucket
		}
		bucketStart, err := metricsql.ParseBucketTime(row.Bucket)
		if err != nil {
			return nil, drilldowndomain.ErrMissingBucket
		}
		bucketEnd, err := metricsql.NextBucketStart(bucketStart, bucket)
		if err != nil {
			return nil, querydomain.ErrInvalidBucket
		}
		start, end = &bucketStart, &bucketEnd
	} else {
		var err error
		if start, err = parseOptionalTime(base.Start); err != nil {
			return nil, querydomain.ErrInvalidRange
		}
		if end, err = parseOptionalTime(base.End); err != nil {
			return nil, querydomain.ErrInvalidRange
		}
	}

	filters := base.Filters
	if base.GroupByEntityID {
		entityID := strings.TrimSpace(row.EntityID)
		if entityID == "" {
			return nil, drilldowndomain.ErrMissingEntityID
		}
		filters.EntityID = entityID
		filters.EntityIDs = nil
	}

	if len(base.GroupBy) > 0 {
		pinned := make(map[string]*string, len(filters.Dimensions)+len(base.GroupBy))
		for key, value := range filters.Dimensions {
			pinned[key] = value
		}
		for _, key := range base.GroupBy {
			value, ok := row.GroupBy[key]
			if !ok {
				// A grouped dimension without row context would silently
				// widen the filter; reject instead.
				return nil, fmt.Errorf("%w: %s", drilldowndomain.ErrMissingDimension, key)
			}
			pinned[key] = value
		}
		filters.Dimensions = pinned
	}

	compiled, err := filters.Compile(s.db.Dialector.Name(), base.MetricKey, start, end)
	if err != nil {
		return nil, err
	}

	resolved := &resolvedFilter{compiled: compiled}
	if len(base.GroupBy) == 1 {
		resolved.breakdownDim = base.GroupBy[0]
	}
	return resolved, nil
}

func toWirePoints(points []pointdomain.MetricPoint) []drilldowndomain.Point {
	out := make([]drilldowndomain.Point, 0, len(points))
	for _, p := range points {
		wire := drilldowndomain.Point{
			ID:           p.ID.String(),
			EntityKind:   p.EntityKind,
			EntityID:     p.EntityID,
			MetricKey:    p.MetricKey,
			DataSourceID: p.DataSourceID.String(),
			Date:         p.Date.UTC().Format(time.RFC3339),
			Granularity:  p.Granularity,
			Value:        p.Value,
		}
		if len(p.Dimensions) > 0 {
			wire.Dimensions = map[string]any(p.Dimensions)
		}
		out = append(out, wire)
	}
	return out
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
