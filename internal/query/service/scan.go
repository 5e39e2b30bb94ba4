package service

import (
	"database/sql"

	"github.com/pulsekit/pulse/internal/metricsql"
	querydomain "github.com/pulsekit/pulse/internal/query/domain"
)

// scanRow reads one aggregate row. The column layout is positional and
// mirrors the select list the plan produced: bucket?, entity_id?, groupBy
// keys in declaration order, value.
func scanRow(rows *sql.Rows, p *plan) (querydomain.Row, error) {
	raw := make([]any, p.selectCnt+1)
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return querydomain.Row{}, err
	}

	var row querydomain.Row
	idx := 0
	if p.bucket != metricsql.BucketNone {
		bucket, err := metricsql.ToBucketString(raw[idx])
		if err != nil {
			return querydomain.Row{}, err
		}
		row.Bucket = bucket
		idx++
	}
	if p.byEntity {
		if v := metricsql.ToNullableString(raw[idx]); v != nil {
			row.EntityID = *v
		}
		idx++
	}
	if len(p.groupBy) > 0 {
		row.GroupBy = make(map[string]*string, len(p.groupBy))
		for _, key := range p.groupBy {
			row.GroupBy[key] = metricsql.ToNullableString(raw[idx])
			idx++
		}
	}

	value, err := metricsql.ToDecimal(raw[idx])
	if err != nil {
		return querydomain.Row{}, err
	}
	row.Value = value
	return row, nil
}
