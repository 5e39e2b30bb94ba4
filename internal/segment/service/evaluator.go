package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pulsekit/pulse/internal/metricsql"
	querydomain "github.com/pulsekit/pulse/internal/query/domain"
	segmentdomain "github.com/pulsekit/pulse/internal/segment/domain"
	"github.com/pulsekit/pulse/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

// directoryScanPageSize is the page width used when walking the whole
// directory for zero-default member listings.
const directoryScanPageSize = 200

// zeroDefault reports whether an entity with no points gets an implicit
// value of zero instead of being excluded. Sum, count and last carry a
// natural zero; avg, min and max do not.
func zeroDefault(agg metricsql.Agg) bool {
	switch agg {
	case metricsql.AggSum, metricsql.AggCount, metricsql.AggLast:
		return true
	}
	return false
}

// thresholdWindow resolves the rule's time range. An explicit start/end
// pair wins over the named preset; the preset resolves against the
// injected clock.
func (s *Service) thresholdWindow(rule *segmentdomain.MetricThresholdRule) (*time.Time, *time.Time, error) {
	if strings.TrimSpace(rule.Start) != "" || strings.TrimSpace(rule.End) != "" {
		var start, end *time.Time
		if raw := strings.TrimSpace(rule.Start); raw != "" {
			t, err := metricsql.ParseBucketTime(raw)
			if err != nil {
				return nil, nil, segmentdomain.ErrInvalidRule
			}
			start = &t
		}
		if raw := strings.TrimSpace(rule.End); raw != "" {
			t, err := metricsql.ParseBucketTime(raw)
			if err != nil {
				return nil, nil, segmentdomain.ErrInvalidRule
			}
			end = &t
		}
		return start, end, nil
	}

	start, end, err := metricsql.ResolveWindow(metricsql.WindowPreset(rule.Window), s.clock.Now())
	if err != nil {
		return nil, nil, segmentdomain.ErrInvalidRule
	}
	return start, &end, nil
}

// thresholdValues runs one grouped query over the rule's window and returns
// each entity's aggregate. Entities without points are simply absent. A nil
// entityIDs slice means every entity of the kind.
func (s *Service) thresholdValues(ctx context.Context, entityKind string, entityIDs []string, rule *segmentdomain.MetricThresholdRule) (map[string]decimal.Decimal, error) {
	agg, ok := metricsql.ParseAgg(rule.Agg)
	if !ok {
		return nil, segmentdomain.ErrInvalidRule
	}

	start, end, err := s.thresholdWindow(rule)
	if err != nil {
		return nil, err
	}

	dialect := s.db.Dialector.Name()
	filter, err := querydomain.Filters{
		EntityKind: entityKind,
		EntityIDs:  entityIDs,
	}.Compile(dialect, rule.MetricKey, start, end)
	if err != nil {
		return nil, err
	}

	var sql string
	if agg == metricsql.AggLast {
		// Shared rank-and-filter window: each entity's newest row in the
		// window is its value.
		sql = fmt.Sprintf(
			"SELECT entity_id, value FROM (SELECT entity_id, value, %s AS rn FROM metric_points WHERE %s) ranked WHERE rn = 1",
			metricsql.RowNumberExpr([]string{"entity_id"}), filter.Where(),
		)
	} else {
		aggExpr, err := metricsql.AggExpr(agg)
		if err != nil {
			return nil, segmentdomain.ErrInvalidRule
		}
		sql = fmt.Sprintf(
			"SELECT entity_id, %s AS value FROM metric_points WHERE %s GROUP BY entity_id",
			aggExpr, filter.Where(),
		)
	}

	rows, err := s.db.WithContext(ctx).Raw(sql, filter.Args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]decimal.Decimal)
	for rows.Next() {
		var entityID string
		var raw any
		if err := rows.Scan(&entityID, &raw); err != nil {
			return nil, err
		}
		value, err := metricsql.ToDecimal(raw)
		if err != nil {
			return nil, err
		}
		values[entityID] = value
	}
	return values, rows.Err()
}

func (s *Service) evaluateThreshold(ctx context.Context, entityKind, entityID string, rule *segmentdomain.MetricThresholdRule) (*segmentdomain.Evaluation, error) {
	op, ok := metricsql.ParseOp(rule.Op)
	if !ok {
		return nil, segmentdomain.ErrInvalidRule
	}
	agg, _ := metricsql.ParseAgg(rule.Agg)

	values, err := s.thresholdValues(ctx, entityKind, []string{entityID}, rule)
	if err != nil {
		return nil, err
	}

	value, present := values[entityID]
	if !present {
		if !zeroDefault(agg) {
			return &segmentdomain.Evaluation{}, nil
		}
		value = decimal.Zero
	}
	return &segmentdomain.Evaluation{
		Matches: op.Compare(value, rule.Value),
		Value:   &value,
	}, nil
}

func (s *Service) thresholdBatch(ctx context.Context, entityKind string, candidates []string, rule *segmentdomain.MetricThresholdRule) ([]string, error) {
	op, ok := metricsql.ParseOp(rule.Op)
	if !ok {
		return nil, segmentdomain.ErrInvalidRule
	}
	agg, _ := metricsql.ParseAgg(rule.Agg)

	values, err := s.thresholdValues(ctx, entityKind, candidates, rule)
	if err != nil {
		return nil, err
	}

	matched := make([]string, 0, len(candidates))
	for _, id := range candidates {
		value, present := values[id]
		if !present {
			if !zeroDefault(agg) {
				continue
			}
			value = decimal.Zero
		}
		if op.Compare(value, rule.Value) {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

// thresholdMembers enumerates every matching entity id. Entities with points
// come from the grouped query; when the rule's zero value itself satisfies
// the threshold, directory-known users without points match too, so the
// directory universe is unioned in for the user kind.
func (s *Service) thresholdMembers(ctx context.Context, entityKind string, rule *segmentdomain.MetricThresholdRule) ([]string, error) {
	op, ok := metricsql.ParseOp(rule.Op)
	if !ok {
		return nil, segmentdomain.ErrInvalidRule
	}
	agg, _ := metricsql.ParseAgg(rule.Agg)

	values, err := s.thresholdValues(ctx, entityKind, nil, rule)
	if err != nil {
		return nil, err
	}

	matched := make(map[string]struct{}, len(values))
	for id, value := range values {
		if op.Compare(value, rule.Value) {
			matched[id] = struct{}{}
		}
	}

	if zeroDefault(agg) && op.Compare(decimal.Zero, rule.Value) && entityKind == segmentdomain.EntityKindUser {
		if err := s.forEachDirectoryID(ctx, func(id string) {
			if _, hasPoints := values[id]; !hasPoints {
				matched[id] = struct{}{}
			}
		}); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Service) forEachDirectoryID(ctx context.Context, visit func(string)) error {
	page := pagination.Page{Page: 1, PageSize: directoryScanPageSize}.Normalize()
	for {
		ids, total, err := s.directory.ListIDs(ctx, page)
		if err != nil {
			return err
		}
		for _, id := range ids {
			visit(id)
		}
		if len(ids) == 0 || int64(page.Offset()+len(ids)) >= total {
			return nil
		}
		page.Page++
	}
}
