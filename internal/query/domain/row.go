package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MarshalJSON flattens a row into {bucket?, entityId?, <groupBy keys...>,
// value}, the wire shape consumers group their charts from.
func (r Row) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.GroupBy)+3)
	if r.Bucket != "" {
		out["bucket"] = r.Bucket
	}
	if r.EntityID != "" {
		out["entityId"] = r.EntityID
	}
	for key, value := range r.GroupBy {
		if value == nil {
			out[key] = nil
			continue
		}
		out[key] = *value
	}
	out["value"] = r.Value
	return json.Marshal(out)
}

// UnmarshalJSON restores the flattened shape, recognizing the reserved
// bucket/entityId/value keys and treating the rest as groupBy values.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.GroupBy = map[string]*string{}
	for key, value := range raw {
		switch key {
		case "bucket":
			if err := json.Unmarshal(value, &r.Bucket); err != nil {
				return err
			}
		case "entityId":
			if err := json.Unmarshal(value, &r.EntityID); err != nil {
				return err
			}
		case "value":
			var v decimal.Decimal
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			r.Value = v
		default:
			var v *string
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			r.GroupBy[key] = v
		}
	}
	if len(r.GroupBy) == 0 {
		r.GroupBy = nil
	}
	return nil
}
