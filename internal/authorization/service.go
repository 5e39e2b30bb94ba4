// Package authorization resolves access decisions for the admin surface.
// Callers hand it an actor and an (object, action) pair and get back a
// yes/no; no handler computes scope itself.
package authorization

import (
	"context"
	"errors"
)

const (
	ObjectSegment     = "segment"
	ObjectTableBucket = "table_bucket"
	ObjectDataSource  = "data_source"
	ObjectPoint       = "point"
	ObjectQuery       = "query"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionIngest = "ingest"
	ActionRun    = "run"
)

type Service interface {
	// Authorize returns nil when the actor may perform action on object.
	Authorize(ctx context.Context, actor, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
