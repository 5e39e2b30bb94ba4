package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowMarshal_Flattens(t *testing.T) {
	region := "eu"
	row := Row{
		Bucket:   "2024-01-01T00:00:00Z",
		EntityID: "u1",
		GroupBy:  map[string]*string{"region": &region, "plan": nil},
		Value:    decimal.NewFromInt(15),
	}

	data, err := json.Marshal(row)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "2024-01-01T00:00:00Z", flat["bucket"])
	assert.Equal(t, "u1", flat["entityId"])
	assert.Equal(t, "eu", flat["region"])
	assert.Nil(t, flat["plan"])
	assert.Equal(t, "15", flat["value"])
}

func TestRowMarshal_OmitsEmptyBucketAndEntity(t *testing.T) {
	data, err := json.Marshal(Row{Value: decimal.NewFromInt(3)})
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.NotContains(t, flat, "bucket")
	assert.NotContains(t, flat, "entityId")
	assert.Contains(t, flat, "value")
}

func TestRowRoundTrip(t *testing.T) {
	region := "us"
	original := Row{
		Bucket:  "2024-02-01T00:00:00Z",
		GroupBy: map[string]*string{"region": &region},
		Value:   decimal.RequireFromString("3.5"),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Row
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, original.Bucket, restored.Bucket)
	require.NotNil(t, restored.GroupBy["region"])
	assert.Equal(t, "us", *restored.GroupBy["region"])
	assert.True(t, original.Value.Equal(restored.Value))
}
