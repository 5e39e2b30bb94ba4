package metricsql

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ToDecimal normalizes the value a driver hands back for an aggregate
// column. Dialects disagree on the concrete Go type, so every variant a
// supported driver produces is handled here.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch value := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return value, nil
	case int64:
		return decimal.NewFromInt(value), nil
	case float64:
		return decimal.NewFromFloat(value), nil
	case string:
		return decimal.NewFromString(value)
	case []byte:
		return decimal.NewFromString(string(value))
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// ToBucketString normalizes a bucket column to RFC3339 UTC.
func ToBucketString(v any) (string, error) {
	switch value := v.(type) {
	case nil:
		return "", nil
	case time.Time:
		return value.UTC().Format(time.RFC3339), nil
	case string:
		t, err := ParseBucketTime(value)
		if err != nil {
			return "", err
		}
		return t.Format(time.RFC3339), nil
	case []byte:
		t, err := ParseBucketTime(string(value))
		if err != nil {
			return "", err
		}
		return t.Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("unsupported bucket type %T", v)
	}
}

// ToNullableString normalizes a projected dimension value. NULL stays nil.
func ToNullableString(v any) *string {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		return &value
	case []byte:
		s := string(value)
		return &s
	default:
		s := fmt.Sprint(value)
		return &s
	}
}
