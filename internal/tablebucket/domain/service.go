package domain

import (
	"context"
	"errors"
)

// MaxAssignEntityIDs bounds one assignment request, matching the segment
// batch limit it fans out to.
const MaxAssignEntityIDs = 500

type CreateBucketRequest struct {
	TableID    string `json:"tableId"`
	ColumnKey  string `json:"columnKey"`
	EntityKind string `json:"entityKind"`
	SegmentKey string `json:"segmentKey"`
	Label      string `json:"label"`
	SortOrder  int    `json:"sortOrder"`
}

type AssignRequest struct {
	TableID    string   `json:"tableId"`
	ColumnKey  string   `json:"columnKey"`
	EntityKind string   `json:"entityKind"`
	EntityIDs  []string `json:"entityIds"`
}

// Assignment is the winning bucket for one entity.
type Assignment struct {
	BucketLabel string `json:"bucketLabel"`
	SegmentKey  string `json:"segmentKey"`
}

// AssignResponse maps every requested entity id to its winning bucket, or
// nil when no bucket matched.
type AssignResponse struct {
	Values map[string]*Assignment `json:"values"`
}

type Service interface {
	Create(context.Context, CreateBucketRequest) (*TableBucket, error)
	// ListColumn returns the buckets of one (table, column) slot in
	// evaluation order.
	ListColumn(ctx context.Context, tableID, columnKey string) ([]TableBucket, error)
	Delete(ctx context.Context, id string) error
	// Assign partitions the candidates across the column's buckets,
	// first match wins.
	Assign(context.Context, AssignRequest) (*AssignResponse, error)
}

var (
	ErrNotFound          = errors.New("table_bucket_not_found")
	ErrInvalidTableID    = errors.New("invalid_table_id")
	ErrInvalidColumnKey  = errors.New("invalid_column_key")
	ErrInvalidLabel      = errors.New("invalid_bucket_label")
	ErrInvalidSegmentKey = errors.New("invalid_segment_key")
	ErrInvalidEntityKind = errors.New("invalid_entity_kind")
	ErrSlotTaken         = errors.New("bucket_slot_taken")
	ErrTooManyEntityIDs  = errors.New("invalid_entity_ids_over_limit")
)
