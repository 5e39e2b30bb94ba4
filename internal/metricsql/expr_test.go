package metricsql

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("region"))
	assert.True(t, ValidIdentifier("plan_tier_2"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("region'; DROP TABLE metric_points; --"))
	assert.False(t, ValidIdentifier("a b"))
	assert.False(t, ValidIdentifier("a-b"))
}

func TestDimensionExpr_RejectsInvalidKey(t *testing.T) {
	_, err := DimensionExpr("postgres", "bad key")
	assert.Error(t, err)
}

func TestDimensionExpr_Dialects(t *testing.T) {
	pg, err := DimensionExpr("postgres", "region")
	require.NoError(t, err)
	assert.Equal(t, "dimensions ->> 'region'", pg)

	lite, err := DimensionExpr("sqlite", "region")
	require.NoError(t, err)
	assert.Equal(t, "CAST(json_extract(dimensions, '$.region') AS TEXT)", lite)

	my, err := DimensionExpr("mysql", "region")
	require.NoError(t, err)
	assert.Equal(t, "JSON_UNQUOTE(JSON_EXTRACT(dimensions, '$.region'))", my)
}

func TestParseBucket(t *testing.T) {
	bucket, ok := ParseBucket("")
	assert.True(t, ok)
	assert.Equal(t, BucketNone, bucket)

	_, ok = ParseBucket("day")
	assert.True(t, ok)

	_, ok = ParseBucket("fortnight")
	assert.False(t, ok)
}

func TestParseAgg(t *testing.T) {
	for _, raw := range []string{"sum", "avg", "min", "max", "count", "last"} {
		_, ok := ParseAgg(raw)
		assert.True(t, ok, raw)
	}
	_, ok := ParseAgg("median")
	assert.False(t, ok)
}

func TestAggExpr_LastHasNoPlainForm(t *testing.T) {
	_, err := AggExpr(AggLast)
	assert.Error(t, err)
}

func TestOpCompare(t *testing.T) {
	five := decimal.NewFromInt(5)
	ten := decimal.NewFromInt(10)

	assert.True(t, OpLT.Compare(five, ten))
	assert.False(t, OpLT.Compare(ten, five))
	assert.True(t, OpGTE.Compare(ten, ten))
	assert.True(t, OpEQ.Compare(five, five))
	assert.True(t, OpNE.Compare(five, ten))
	assert.False(t, OpGT.Compare(five, five))
}

func TestRowNumberExpr(t *testing.T) {
	assert.Equal(t,
		"ROW_NUMBER() OVER (ORDER BY date DESC, id DESC)",
		RowNumberExpr(nil))
	assert.Equal(t,
		"ROW_NUMBER() OVER (PARTITION BY entity_id ORDER BY date DESC, id DESC)",
		RowNumberExpr([]string{"entity_id"}))
}
