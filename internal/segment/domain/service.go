package domain

import (
	"context"
	"errors"

	"github.com/pulsekit/pulse/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

// MaxBatchEntityIDs bounds one batch membership test.
const MaxBatchEntityIDs = 500

// EntityKindUser is the only kind the external directory can resolve, so
// all_entities and entity_attribute rules are restricted to it.
const EntityKindUser = "user"

type CreateSegmentRequest struct {
	Key        string `json:"key"`
	EntityKind string `json:"entityKind"`
	Label      string `json:"label"`
	Rule       Rule   `json:"rule"`
}

type UpdateSegmentRequest struct {
	Key      string `json:"-"`
	Label    *string `json:"label,omitempty"`
	Rule     *Rule   `json:"rule,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

type EvaluateRequest struct {
	Key        string `json:"-"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId"`
}

// Evaluation is one membership decision. Value is set for threshold rules.
type Evaluation struct {
	Matches bool             `json:"matches"`
	Value   *decimal.Decimal `json:"value,omitempty"`
}

type MembersRequest struct {
	Key        string          `json:"-"`
	EntityKind string          `json:"entityKind"`
	Page       pagination.Page `json:"page"`
}

type MembersResponse struct {
	Items []string            `json:"items"`
	Info  pagination.PageInfo `json:"pagination"`
}

type EvaluateBatchRequest struct {
	Key        string   `json:"-"`
	EntityKind string   `json:"entityKind"`
	EntityIDs  []string `json:"entityIds"`
}

type Service interface {
	Create(context.Context, CreateSegmentRequest) (*Segment, error)
	Update(context.Context, UpdateSegmentRequest) (*Segment, error)
	List(context.Context, string) ([]Segment, error)
	GetByKey(context.Context, string) (*Segment, error)

	// Evaluate tests a single (entityKind, entityId) for membership.
	Evaluate(context.Context, EvaluateRequest) (*Evaluation, error)
	// Members pages all currently matching entity ids, ascending.
	Members(context.Context, MembersRequest) (*MembersResponse, error)
	// EvaluateBatch returns the matching subset of the candidate ids,
	// preserving input order, in one storage round trip per rule.
	EvaluateBatch(context.Context, EvaluateBatchRequest) ([]string, error)
}

var (
	ErrNotFound              = errors.New("segment_not_found")
	ErrKeyExists             = errors.New("segment_key_exists")
	ErrInvalidKey            = errors.New("invalid_segment_key")
	ErrInvalidLabel          = errors.New("invalid_segment_label")
	ErrInvalidEntityKind     = errors.New("invalid_entity_kind")
	ErrInvalidEntityID       = errors.New("invalid_entity_id")
	ErrInvalidRule           = errors.New("invalid_segment_rule")
	ErrUnknownRuleKind       = errors.New("unknown_segment_rule_kind")
	ErrEntityKindMismatch    = errors.New("entity_kind_mismatch")
	ErrUnsupportedEntityKind = errors.New("unsupported_entity_kind")
	ErrTooManyEntityIDs      = errors.New("invalid_entity_ids_over_limit")
)
