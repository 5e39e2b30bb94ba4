// Package domain defines the read-only entity-attribute directory the
// segment evaluator consults for user rules. Reads are best-effort and
// eventually consistent with the authoritative user store.
package domain

import (
	"context"
	"errors"

	"github.com/pulsekit/pulse/pkg/db/pagination"
)

// Attribute names usable in entity_attribute rules.
const (
	AttributeRole          = "role"
	AttributeEmailVerified = "email_verified"
	AttributeLocked        = "locked"
)

// Attributes are the looked-up properties of one user entity.
type Attributes struct {
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
	Locked        bool   `json:"locked"`
}

// AttributeMatch is an equality test against one directory attribute.
// Negate flips it into an inequality test.
type AttributeMatch struct {
	Attribute string
	Value     any
	Negate    bool
}

type Service interface {
	// Lookup returns nil without error when the id is unknown.
	Lookup(ctx context.Context, entityID string) (*Attributes, error)
	// ListIDs pages all known entity ids in ascending order.
	ListIDs(ctx context.Context, page pagination.Page) ([]string, int64, error)
	// FilterExisting returns the subset of ids present in the directory.
	FilterExisting(ctx context.Context, ids []string) ([]string, error)
	// FilterMatching returns the subset of ids whose attribute satisfies the match.
	FilterMatching(ctx context.Context, match AttributeMatch, ids []string) ([]string, error)
	// ListMatchingIDs pages all ids whose attribute satisfies the match, ascending.
	ListMatchingIDs(ctx context.Context, match AttributeMatch, page pagination.Page) ([]string, int64, error)
}

var (
	ErrInvalidAttribute      = errors.New("invalid_attribute")
	ErrInvalidAttributeValue = errors.New("invalid_attribute_value")
)

// ValidAttribute reports whether name is one of the known directory attributes.
func ValidAttribute(name string) bool {
	switch name {
	case AttributeRole, AttributeEmailVerified, AttributeLocked:
		return true
	}
	return false
}
