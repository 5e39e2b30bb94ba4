// Package metricsql builds the SQL fragments shared by the query engine,
// drilldown resolver and segment evaluator. Every caller-supplied dimension
// key passes through ValidIdentifier before it reaches a statement; this
// package is the injection boundary.
package metricsql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Bucket is a time-truncation granularity for grouping points.
type Bucket string

const (
	BucketNone  Bucket = "none"
	BucketHour  Bucket = "hour"
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// Agg is an aggregation function over point values.
type Agg string

const (
	AggSum   Agg = "sum"
	AggAvg   Agg = "avg"
	AggMin   Agg = "min"
	AggMax   Agg = "max"
	AggCount Agg = "count"
	AggLast  Agg = "last"
)

// Granularity is the native cadence a data source reports points at.
type Granularity string

const (
	GranularityHourly  Granularity = "hourly"
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// Op is a comparison operator used by threshold rules.
type Op string

const (
	OpGTE Op = ">="
	OpGT  Op = ">"
	OpLTE Op = "<="
	OpLT  Op = "<"
	OpEQ  Op = "=="
	OpNE  Op = "!="
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidIdentifier reports whether key is safe to interpolate into a JSON
// field-extraction expression. Letters, digits and underscore only.
func ValidIdentifier(key string) bool {
	return key != "" && identifierPattern.MatchString(key)
}

// ParseBucket validates a bucket name. Empty means none.
func ParseBucket(raw string) (Bucket, bool) {
	switch Bucket(strings.TrimSpace(raw)) {
	case "", BucketNone:
		return BucketNone, true
	case BucketHour:
		return BucketHour, true
	case BucketDay:
		return BucketDay, true
	case BucketWeek:
		return BucketWeek, true
	case BucketMonth:
		return BucketMonth, true
	default:
		return "", false
	}
}

// ParseAgg validates an aggregation name.
func ParseAgg(raw string) (Agg, bool) {
	switch Agg(strings.TrimSpace(raw)) {
	case AggSum, AggAvg, AggMin, AggMax, AggCount, AggLast:
		return Agg(strings.TrimSpace(raw)), true
	default:
		return "", false
	}
}

// ParseGranularity validates a source granularity. Empty means daily.
func ParseGranularity(raw string) (Granularity, bool) {
	switch Granularity(strings.TrimSpace(raw)) {
	case "":
		return GranularityDaily, true
	case GranularityHourly, GranularityDaily, GranularityWeekly, GranularityMonthly:
		return Granularity(strings.TrimSpace(raw)), true
	default:
		return "", false
	}
}

// ParseOp validates a comparison operator.
func ParseOp(raw string) (Op, bool) {
	switch Op(strings.TrimSpace(raw)) {
	case OpGTE, OpGT, OpLTE, OpLT, OpEQ, OpNE:
		return Op(strings.TrimSpace(raw)), true
	default:
		return "", false
	}
}

// Compare applies the operator to two decimals.
func (op Op) Compare(left, right decimal.Decimal) bool {
	cmp := left.Cmp(right)
	switch op {
	case OpGTE:
		return cmp >= 0
	case OpGT:
		return cmp > 0
	case OpLTE:
		return cmp <= 0
	case OpLT:
		return cmp < 0
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	default:
		return false
	}
}

// DimensionExpr returns the dialect-specific expression extracting one
// dimension value as text. The key must already be identifier-validated;
// callers that skip validation get an error, not SQL.
// Sqlite's json_extract yields the native storage type, so the result is
// cast to TEXT there; grouping and filtering must see the same value a
// string bind parameter compares against.
func DimensionExpr(dialect, key string) (string, error) {
	if !ValidIdentifier(key) {
		return "", fmt.Errorf("invalid dimension key %q", key)
	}
	switch dialect {
	case "sqlite":
		return fmt.Sprintf("CAST(json_extract(dimensions, '$.%s') AS TEXT)", key), nil
	case "mysql":
		return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(dimensions, '$.%s'))", key), nil
	default: // postgres
		return fmt.Sprintf("dimensions ->> '%s'", key), nil
	}
}

// BucketExpr returns the dialect-specific truncation of the date column to
// the bucket start. Week buckets start on Monday.
func BucketExpr(dialect string, bucket Bucket) (string, error) {
	switch dialect {
	case "sqlite":
		switch bucket {
		case BucketHour:
			return "strftime('%Y-%m-%dT%H:00:00Z', date)", nil
		case BucketDay:
			return "strftime('%Y-%m-%dT00:00:00Z', date)", nil
		case BucketWeek:
			return "strftime('%Y-%m-%dT00:00:00Z', date, '-' || ((strftime('%w', date) + 6) % 7) || ' days')", nil
		case BucketMonth:
			return "strftime('%Y-%m-01T00:00:00Z', date)", nil
		}
	case "mysql":
		switch bucket {
		case BucketHour:
			return "DATE_FORMAT(date, '%Y-%m-%d %H:00:00')", nil
		case BucketDay:
			return "DATE_FORMAT(date, '%Y-%m-%d 00:00:00')", nil
		case BucketWeek:
			return "DATE_FORMAT(DATE_SUB(date, INTERVAL WEEKDAY(date) DAY), '%Y-%m-%d 00:00:00')", nil
		case BucketMonth:
			return "DATE_FORMAT(date, '%Y-%m-01 00:00:00')", nil
		}
	default: // postgres
		switch bucket {
		case BucketHour, BucketDay, BucketWeek, BucketMonth:
			return fmt.Sprintf("date_trunc('%s', date)", bucket), nil
		}
	}
	return "", fmt.Errorf("invalid bucket %q", bucket)
}

// AggExpr returns the aggregate expression over the value column. AggLast has
// no plain aggregate form; callers must go through RowNumberExpr instead.
func AggExpr(agg Agg) (string, error) {
	switch agg {
	case AggSum:
		return "SUM(value)", nil
	case AggAvg:
		return "AVG(value)", nil
	case AggMin:
		return "MIN(value)", nil
	case AggMax:
		return "MAX(value)", nil
	case AggCount:
		return "COUNT(*)", nil
	case AggLast:
		return "", fmt.Errorf("agg %q has no aggregate expression", agg)
	default:
		return "", fmt.Errorf("invalid agg %q", agg)
	}
}

// RowNumberExpr builds the shared rank-and-filter window expression for
// "last" semantics: rank 1 is the most recent row within each partition.
func RowNumberExpr(partitionExprs []string) string {
	order := "ORDER BY date DESC, id DESC"
	if len(partitionExprs) == 0 {
		return fmt.Sprintf("ROW_NUMBER() OVER (%s)", order)
	}
	return fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s %s)", strings.Join(partitionExprs, ", "), order)
}
