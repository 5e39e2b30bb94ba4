package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pulsekit/pulse/internal/metricsql"
)

// CompiledFilter is a validated WHERE clause over metric_points.
type CompiledFilter struct {
	Conds []string
	Args  []any
}

// Where joins the conditions for interpolation into a statement.
func (c CompiledFilter) Where() string {
	if len(c.Conds) == 0 {
		return "1=1"
	}
	return strings.Join(c.Conds, " AND ")
}

// Compile validates the filter set and produces parameterized conditions.
// Dimension keys are the only caller-controlled identifiers; they pass
// through metricsql.ValidIdentifier before touching SQL.
func (f Filters) Compile(dialect, metricKey string, start, end *time.Time) (CompiledFilter, error) {
	var out CompiledFilter

	metricKey = strings.TrimSpace(metricKey)
	if metricKey == "" {
		return out, ErrInvalidMetricKey
	}
	out.Conds = append(out.Conds, "metric_key = ?")
	out.Args = append(out.Args, metricKey)

	if start != nil {
		out.Conds = append(out.Conds, "date >= ?")
		out.Args = append(out.Args, start.UTC())
	}
	if end != nil {
		out.Conds = append(out.Conds, "date < ?")
		out.Args = append(out.Args, end.UTC())
	}

	if kind := strings.TrimSpace(f.EntityKind); kind != "" {
		out.Conds = append(out.Conds, "entity_kind = ?")
		out.Args = append(out.Args, kind)
	}
	if id := strings.TrimSpace(f.EntityID); id != "" {
		out.Conds = append(out.Conds, "entity_id = ?")
		out.Args = append(out.Args, id)
	}
	if len(f.EntityIDs) > 0 {
		if len(f.EntityIDs) > MaxEntityIDFilter {
			return out, ErrTooManyEntityIDs
		}
		out.Conds = append(out.Conds, "entity_id IN ?")
		out.Args = append(out.Args, f.EntityIDs)
	}
	if id := strings.TrimSpace(f.DataSourceID); id != "" {
		out.Conds = append(out.Conds, "data_source_id = ?")
		out.Args = append(out.Args, id)
	}
	if g := strings.TrimSpace(f.SourceGranularity); g != "" {
		granularity, ok := metricsql.ParseGranularity(g)
		if !ok {
			return out, ErrInvalidGranularity
		}
		out.Conds = append(out.Conds, "granularity = ?")
		out.Args = append(out.Args, string(granularity))
	}

	// Deterministic condition order keeps statements cache-friendly.
	dimKeys := make([]string, 0, len(f.Dimensions))
	for key := range f.Dimensions {
		dimKeys = append(dimKeys, key)
	}
	sort.Strings(dimKeys)
	for _, key := range dimKeys {
		expr, err := metricsql.DimensionExpr(dialect, key)
		if err != nil {
			return out, ErrInvalidDimensionKey
		}
		value := f.Dimensions[key]
		if value == nil {
			out.Conds = append(out.Conds, fmt.Sprintf("%s IS NULL", expr))
			continue
		}
		out.Conds = append(out.Conds, fmt.Sprintf("%s = ?", expr))
		out.Args = append(out.Args, *value)
	}

	return out, nil
}
