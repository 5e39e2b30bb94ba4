package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pulsekit/pulse/internal/metricsql"
	"github.com/shopspring/decimal"
)

// Rule kinds. The union is closed: anything else is rejected when the rule
// is decoded, never deep inside query construction.
const (
	RuleStaticEntityIDs = "static_entity_ids"
	RuleAllEntities     = "all_entities"
	RuleEntityAttribute = "entity_attribute"
	RuleMetricThreshold = "metric_threshold"
)

// Rule is the tagged union stored in a segment's jsonb column. Exactly one
// variant pointer is non-nil, matching Kind.
type Rule struct {
	Kind string

	StaticEntityIDs *StaticEntityIDsRule
	EntityAttribute *EntityAttributeRule
	MetricThreshold *MetricThresholdRule
}

// StaticEntityIDsRule matches exactly the listed ids.
type StaticEntityIDsRule struct {
	EntityIDs []string `json:"entityIds"`
}

// EntityAttributeRule matches users whose directory attribute compares as
// specified. Only == and != are meaningful on attributes.
type EntityAttributeRule struct {
	Attribute string `json:"attribute"`
	Op        string `json:"op"`
	Value     any    `json:"value"`
}

// MetricThresholdRule aggregates an entity's points over a window and
// compares the result against Value. An explicit start/end range takes
// precedence over the named window preset.
type MetricThresholdRule struct {
	MetricKey string          `json:"metricKey"`
	Agg       string          `json:"agg"`
	Window    string          `json:"window,omitempty"`
	Start     string          `json:"start,omitempty"`
	End       string          `json:"end,omitempty"`
	Op        string          `json:"op"`
	Value     decimal.Decimal `json:"value"`
}

type ruleEnvelope struct {
	Kind string `json:"kind"`
}

// UnmarshalJSON decodes the flattened {kind, ...fields} wire form.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var envelope ruleEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	*r = Rule{Kind: strings.TrimSpace(envelope.Kind)}
	switch r.Kind {
	case RuleStaticEntityIDs:
		r.StaticEntityIDs = &StaticEntityIDsRule{}
		return json.Unmarshal(data, r.StaticEntityIDs)
	case RuleAllEntities:
		return nil
	case RuleEntityAttribute:
		r.EntityAttribute = &EntityAttributeRule{}
		return json.Unmarshal(data, r.EntityAttribute)
	case RuleMetricThreshold:
		r.MetricThreshold = &MetricThresholdRule{}
		return json.Unmarshal(data, r.MetricThreshold)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRuleKind, envelope.Kind)
	}
}

// MarshalJSON flattens the active variant next to its kind tag.
func (r Rule) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RuleStaticEntityIDs:
		return marshalWithKind(r.Kind, r.StaticEntityIDs)
	case RuleAllEntities:
		return json.Marshal(ruleEnvelope{Kind: r.Kind})
	case RuleEntityAttribute:
		return marshalWithKind(r.Kind, r.EntityAttribute)
	case RuleMetricThreshold:
		return marshalWithKind(r.Kind, r.MetricThreshold)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleKind, r.Kind)
	}
}

func marshalWithKind(kind string, variant any) ([]byte, error) {
	body, err := json.Marshal(variant)
	if err != nil {
		return nil, err
	}
	var flat map[string]any
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, err
	}
	flat["kind"] = kind
	return json.Marshal(flat)
}

// Validate rejects malformed variants at the admin boundary.
func (r Rule) Validate() error {
	switch r.Kind {
	case RuleStaticEntityIDs:
		if r.StaticEntityIDs == nil || len(r.StaticEntityIDs.EntityIDs) == 0 {
			return ErrInvalidRule
		}
	case RuleAllEntities:
	case RuleEntityAttribute:
		if r.EntityAttribute == nil {
			return ErrInvalidRule
		}
		switch r.EntityAttribute.Attribute {
		case "role", "email_verified", "locked":
		default:
			return ErrInvalidRule
		}
		if r.EntityAttribute.Op != "==" && r.EntityAttribute.Op != "!=" {
			return ErrInvalidRule
		}
	case RuleMetricThreshold:
		rule := r.MetricThreshold
		if rule == nil || strings.TrimSpace(rule.MetricKey) == "" {
			return ErrInvalidRule
		}
		if _, ok := metricsql.ParseAgg(rule.Agg); !ok {
			return ErrInvalidRule
		}
		if _, ok := metricsql.ParseOp(rule.Op); !ok {
			return ErrInvalidRule
		}
		if strings.TrimSpace(rule.Start) == "" && strings.TrimSpace(rule.End) == "" {
			if !metricsql.ValidWindowPreset(metricsql.WindowPreset(rule.Window)) {
				return ErrInvalidRule
			}
		}
	default:
		return ErrUnknownRuleKind
	}
	return nil
}
