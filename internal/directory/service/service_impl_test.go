package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	directorydomain "github.com/pulsekit/pulse/internal/directory/domain"
	"github.com/pulsekit/pulse/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (directorydomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&directorydomain.User{}))
	return NewService(Params{DB: db, Log: zap.NewNop()}), db
}

func seedUser(t *testing.T, db *gorm.DB, id, role string, verified, locked bool) {
	t.Helper()
	require.NoError(t, db.Create(&directorydomain.User{
		ID: id, Role: role, EmailVerified: verified, Locked: locked,
	}).Error)
}

func TestLookup(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", "admin", true, false)

	attrs, err := svc.Lookup(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, attrs)
	assert.Equal(t, "admin", attrs.Role)
	assert.True(t, attrs.EmailVerified)
	assert.False(t, attrs.Locked)

	attrs, err = svc.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, attrs, "unknown ids resolve to nil, not an error")

	attrs, err = svc.Lookup(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, attrs)
}

func TestListIDs_Paged(t *testing.T) {
	svc, db := newTestService(t)
	for _, id := range []string{"c", "a", "b"} {
		seedUser(t, db, id, "member", false, false)
	}

	ids, total, err := svc.ListIDs(context.Background(), pagination.Page{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, _, err = svc.ListIDs(context.Background(), pagination.Page{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids)
}

func TestFilterExisting(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1", "member", false, false)
	seedUser(t, db, "u2", "member", false, false)

	existing, err := svc.FilterExisting(context.Background(), []string{"u2", "ghost", "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, existing)

	existing, err = svc.FilterExisting(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestFilterMatching(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "admin1", "admin", true, false)
	seedUser(t, db, "member1", "member", true, false)
	seedUser(t, db, "locked1", "member", false, true)

	all := []string{"admin1", "member1", "locked1"}

	tests := []struct {
		name  string
		match directorydomain.AttributeMatch
		want  []string
	}{
		{
			name:  "role equality",
			match: directorydomain.AttributeMatch{Attribute: "role", Value: "admin"},
			want:  []string{"admin1"},
		},
		{
			name:  "role negated",
			match: directorydomain.AttributeMatch{Attribute: "role", Value: "admin", Negate: true},
			want:  []string{"locked1", "member1"},
		},
		{
			name:  "locked flag",
			match: directorydomain.AttributeMatch{Attribute: "locked", Value: true},
			want:  []string{"locked1"},
		},
		{
			name:  "verified negated",
			match: directorydomain.AttributeMatch{Attribute: "email_verified", Value: true, Negate: true},
			want:  []string{"locked1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.FilterMatching(context.Background(), tt.match, all)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterMatching_InvalidValues(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.FilterMatching(context.Background(),
		directorydomain.AttributeMatch{Attribute: "role", Value: 42}, []string{"u1"})
	assert.ErrorIs(t, err, directorydomain.ErrInvalidAttributeValue)

	_, err = svc.FilterMatching(context.Background(),
		directorydomain.AttributeMatch{Attribute: "locked", Value: "yes"}, []string{"u1"})
	assert.ErrorIs(t, err, directorydomain.ErrInvalidAttributeValue)

	_, err = svc.FilterMatching(context.Background(),
		directorydomain.AttributeMatch{Attribute: "shoe_size", Value: 44}, []string{"u1"})
	assert.ErrorIs(t, err, directorydomain.ErrInvalidAttribute)
}

func TestListMatchingIDs(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "a", "admin", true, false)
	seedUser(t, db, "b", "member", true, false)
	seedUser(t, db, "c", "admin", true, false)
	seedUser(t, db, "d", "admin", true, false)

	ids, total, err := svc.ListMatchingIDs(context.Background(),
		directorydomain.AttributeMatch{Attribute: "role", Value: "admin"},
		pagination.Page{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"a", "c"}, ids)

	ids, _, err = svc.ListMatchingIDs(context.Background(),
		directorydomain.AttributeMatch{Attribute: "role", Value: "admin"},
		pagination.Page{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids)
}
