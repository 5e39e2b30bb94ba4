package service

import (
	"context"
	"database/sql"
	"fmt"

	drilldowndomain "github.com/pulsekit/pulse/internal/drilldown/domain"
	"github.com/pulsekit/pulse/internal/metricsql"
)

// contributors computes the top-N breakdowns for the resolved filter: by
// entity, by data source, and by the originating query's single groupBy
// dimension when one was declared.
func (s *Service) contributors(ctx context.Context, resolved *resolvedFilter) (*drilldowndomain.Contributors, error) {
	byEntity, err := s.breakdown(ctx, resolved, "entity_id")
	if err != nil {
		return nil, err
	}
	byDataSource, err := s.breakdown(ctx, resolved, "data_source_id")
	if err != nil {
		return nil, err
	}

	contributors := &drilldowndomain.Contributors{
		ByEntity:     byEntity,
		ByDataSource: byDataSource,
	}

	if resolved.breakdownDim != "" {
		expr, err := metricsql.DimensionExpr(s.db.Dialector.Name(), resolved.breakdownDim)
		if err != nil {
			return nil, err
		}
		top, err := s.breakdown(ctx, resolved, expr)
		if err != nil {
			return nil, err
		}
		contributors.ByDimension = &drilldowndomain.DimensionBreakdown{
			Dimension: resolved.breakdownDim,
			Top:       top,
		}
	}

	return contributors, nil
}

func (s *Service) breakdown(ctx context.Context, resolved *resolvedFilter, keyExpr string) ([]drilldowndomain.Contributor, error) {
	query := fmt.Sprintf(
		"SELECT %s AS key, SUM(value) AS value FROM metric_points WHERE %s GROUP BY %s ORDER BY SUM(value) DESC LIMIT %d",
		keyExpr,
		resolved.compiled.Where(),
		keyExpr,
		drilldowndomain.ContributorLimit,
	)

	rows, err := s.db.WithContext(ctx).Raw(query, resolved.compiled.Args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContributors(rows)
}

func scanContributors(rows *sql.Rows) ([]drilldowndomain.Contributor, error) {
	out := make([]drilldowndomain.Contributor, 0, drilldowndomain.ContributorLimit)
	for rows.Next() {
		var rawKey, rawValue any
		if err := rows.Scan(&rawKey, &rawValue); err != nil {
			return nil, err
		}
		value, err := metricsql.ToDecimal(rawValue)
		if err != nil {
			return nil, err
		}
		out = append(out, drilldowndomain.Contributor{
			Key:   metricsql.ToNullableString(rawKey),
			Value: value,
		})
	}
	return out, rows.Err()
}
