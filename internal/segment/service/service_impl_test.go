package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/pulsekit/pulse/internal/clock"
	directorydomain "github.com/pulsekit/pulse/internal/directory/domain"
	directoryservice "github.com/pulsekit/pulse/internal/directory/service"
	pointdomain "github.com/pulsekit/pulse/internal/point/domain"
	segmentdomain "github.com/pulsekit/pulse/internal/segment/domain"
	"github.com/pulsekit/pulse/internal/segment/repository"
	"github.com/pulsekit/pulse/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc   segmentdomain.Service
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

// testNow anchors every window preset in this file.
var testNow = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&segmentdomain.Segment{},
		&directorydomain.User{},
		&pointdomain.MetricPoint{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(testNow)
	directory := directoryservice.NewService(directoryservice.Params{DB: db, Log: zap.NewNop()})
	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repository.Provide(db),
		Directory: directory,
		Clock:     fake,
	})
	return &fixture{svc: svc, db: db, node: node, clock: fake}
}

func (f *fixture) seedUser(t *testing.T, id, role string, locked bool) {
	t.Helper()
	require.NoError(t, f.db.Create(&directorydomain.User{
		ID: id, Role: role, EmailVerified: true, Locked: locked,
	}).Error)
}

func (f *fixture) seedPoint(t *testing.T, entityID, metric string, date time.Time, value int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&pointdomain.MetricPoint{
		ID:           f.node.Generate(),
		EntityKind:   segmentdomain.EntityKindUser,
		EntityID:     entityID,
		MetricKey:    metric,
		DataSourceID: f.node.Generate(),
		Date:         date,
		Granularity:  "daily",
		Value:        decimal.NewFromInt(value),
	}).Error)
}

func (f *fixture) create(t *testing.T, key, entityKind string, rule segmentdomain.Rule) {
	t.Helper()
	_, err := f.svc.Create(context.Background(), segmentdomain.CreateSegmentRequest{
		Key: key, EntityKind: entityKind, Label: key, Rule: rule,
	})
	require.NoError(t, err)
}

func staticRule(ids ...string) segmentdomain.Rule {
	return segmentdomain.Rule{
		Kind:            segmentdomain.RuleStaticEntityIDs,
		StaticEntityIDs: &segmentdomain.StaticEntityIDsRule{EntityIDs: ids},
	}
}

func thresholdRule(metric, agg, window, op string, value int64) segmentdomain.Rule {
	return segmentdomain.Rule{
		Kind: segmentdomain.RuleMetricThreshold,
		MetricThreshold: &segmentdomain.MetricThresholdRule{
			MetricKey: metric, Agg: agg, Window: window, Op: op, Value: decimal.NewFromInt(value),
		},
	}
}

func TestCreate_DuplicateKey(t *testing.T) {
	f := newFixture(t)
	f.create(t, "vip", "user", staticRule("u1"))

	_, err := f.svc.Create(context.Background(), segmentdomain.CreateSegmentRequest{
		Key: "vip", EntityKind: "user", Label: "again", Rule: staticRule("u2"),
	})
	assert.ErrorIs(t, err, segmentdomain.ErrKeyExists)
}

func TestCreate_DirectoryRulesRequireUserKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), segmentdomain.CreateSegmentRequest{
		Key: "all-accounts", EntityKind: "account", Label: "All accounts",
		Rule: segmentdomain.Rule{Kind: segmentdomain.RuleAllEntities},
	})
	assert.ErrorIs(t, err, segmentdomain.ErrUnsupportedEntityKind)
}

func TestUpdate_PartialFields(t *testing.T) {
	f := newFixture(t)
	f.create(t, "vip", "user", staticRule("u1"))

	inactive := false
	updated, err := f.svc.Update(context.Background(), segmentdomain.UpdateSegmentRequest{
		Key: "vip", IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "vip", updated.Label, "untouched fields keep their value")

	_, err = f.svc.Update(context.Background(), segmentdomain.UpdateSegmentRequest{Key: "ghost"})
	assert.ErrorIs(t, err, segmentdomain.ErrNotFound)
}

func TestEvaluate_StaticRule(t *testing.T) {
	f := newFixture(t)
	f.create(t, "vip", "user", staticRule("u1", "u2"))

	eval, err := f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "vip", EntityKind: "user", EntityID: "u1",
	})
	require.NoError(t, err)
	assert.True(t, eval.Matches)

	eval, err = f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "vip", EntityKind: "user", EntityID: "u9",
	})
	require.NoError(t, err)
	assert.False(t, eval.Matches)
}

func TestEvaluate_AllEntities(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "u1", "member", false)
	f.create(t, "everyone", "user", segmentdomain.Rule{Kind: segmentdomain.RuleAllEntities})

	eval, err := f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "everyone", EntityKind: "user", EntityID: "u1",
	})
	require.NoError(t, err)
	assert.True(t, eval.Matches)

	eval, err = f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "everyone", EntityKind: "user", EntityID: "stranger",
	})
	require.NoError(t, err)
	assert.False(t, eval.Matches, "ids unknown to the directory never match")
}

func TestEvaluate_EntityAttribute(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "admin1", "admin", false)
	f.seedUser(t, "member1", "member", false)
	f.create(t, "admins", "user", segmentdomain.Rule{
		Kind: segmentdomain.RuleEntityAttribute,
		EntityAttribute: &segmentdomain.EntityAttributeRule{
			Attribute: "role", Op: "==", Value: "admin",
		},
	})

	eval, err := f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "admins", EntityKind: "user", EntityID: "admin1",
	})
	require.NoError(t, err)
	assert.True(t, eval.Matches)

	eval, err = f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "admins", EntityKind: "user", EntityID: "member1",
	})
	require.NoError(t, err)
	assert.False(t, eval.Matches)
}

func TestEvaluate_ThresholdWindow(t *testing.T) {
	f := newFixture(t)
	f.seedPoint(t, "u1", "api_calls", testNow.AddDate(0, 0, -3), 50)
	f.seedPoint(t, "u1", "api_calls", testNow.AddDate(0, 0, -40), 500)
	f.create(t, "active", "user", thresholdRule("api_calls", "sum", "last_7_days", ">=", 40))

	eval, err := f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "active", EntityKind: "user", EntityID: "u1",
	})
	require.NoError(t, err)
	assert.True(t, eval.Matches)
	require.NotNil(t, eval.Value)
	assert.True(t, eval.Value.Equal(decimal.NewFromInt(50)), "sum must only see the point inside the window")
}

func TestEvaluate_ThresholdZeroDefaults(t *testing.T) {
	f := newFixture(t)
	f.create(t, "low-usage", "user", thresholdRule("api_calls", "sum", "last_30_days", "<", 100))
	f.create(t, "has-usage", "user", thresholdRule("api_calls", "avg", "last_30_days", ">", 0))

	// Sum defaults a pointless entity to zero, which is below 100.
	eval, err := f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "low-usage", EntityKind: "user", EntityID: "ghost",
	})
	require.NoError(t, err)
	assert.True(t, eval.Matches)
	require.NotNil(t, eval.Value)
	assert.True(t, eval.Value.IsZero())

	// Avg has no zero default, so the same entity is simply excluded.
	eval, err = f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "has-usage", EntityKind: "user", EntityID: "ghost",
	})
	require.NoError(t, err)
	assert.False(t, eval.Matches)
	assert.Nil(t, eval.Value)
}

func TestEvaluate_InactiveSegment(t *testing.T) {
	f := newFixture(t)
	f.create(t, "vip", "user", staticRule("u1"))
	inactive := false
	_, err := f.svc.Update(context.Background(), segmentdomain.UpdateSegmentRequest{Key: "vip", IsActive: &inactive})
	require.NoError(t, err)

	eval, err := f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "vip", EntityKind: "user", EntityID: "u1",
	})
	require.NoError(t, err)
	assert.False(t, eval.Matches)
}

func TestEvaluate_EntityKindMismatch(t *testing.T) {
	f := newFixture(t)
	f.create(t, "vip", "user", staticRule("u1"))

	_, err := f.svc.Evaluate(context.Background(), segmentdomain.EvaluateRequest{
		Key: "vip", EntityKind: "account", EntityID: "u1",
	})
	assert.ErrorIs(t, err, segmentdomain.ErrEntityKindMismatch)
}

func TestEvaluateBatch_OrderAndLimit(t *testing.T) {
	f := newFixture(t)
	f.create(t, "vip", "user", staticRule("u1", "u3", "u5"))

	matched, err := f.svc.EvaluateBatch(context.Background(), segmentdomain.EvaluateBatchRequest{
		Key: "vip", EntityKind: "user", EntityIDs: []string{"u5", "u2", "u1", "u4"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u5", "u1"}, matched, "matches keep the caller's order")

	over := make([]string, segmentdomain.MaxBatchEntityIDs+1)
	for i := range over {
		over[i] = fmt.Sprintf("u%d", i)
	}
	_, err = f.svc.EvaluateBatch(context.Background(), segmentdomain.EvaluateBatchRequest{
		Key: "vip", EntityKind: "user", EntityIDs: over,
	})
	assert.ErrorIs(t, err, segmentdomain.ErrTooManyEntityIDs)
}

func TestEvaluateBatch_Threshold(t *testing.T) {
	f := newFixture(t)
	f.seedPoint(t, "heavy", "api_calls", testNow.AddDate(0, 0, -1), 200)
	f.seedPoint(t, "light", "api_calls", testNow.AddDate(0, 0, -1), 5)
	f.create(t, "heavy-users", "user", thresholdRule("api_calls", "sum", "last_30_days", ">=", 100))

	matched, err := f.svc.EvaluateBatch(context.Background(), segmentdomain.EvaluateBatchRequest{
		Key: "heavy-users", EntityKind: "user", EntityIDs: []string{"light", "heavy", "ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"heavy"}, matched)
}

func TestMembers_StaticPaging(t *testing.T) {
	f := newFixture(t)
	f.create(t, "vip", "user", staticRule("b", "c", "a", "d"))

	resp, err := f.svc.Members(context.Background(), segmentdomain.MembersRequest{
		Key: "vip", EntityKind: "user", Page: pagination.Page{Page: 1, PageSize: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, resp.Items)
	assert.Equal(t, int64(4), resp.Info.Total)

	resp, err = f.svc.Members(context.Background(), segmentdomain.MembersRequest{
		Key: "vip", EntityKind: "user", Page: pagination.Page{Page: 2, PageSize: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, resp.Items)
}

func TestMembers_ThresholdZeroDefaultUnion(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "idle", "member", false)
	f.seedUser(t, "busy", "member", false)
	f.seedPoint(t, "busy", "api_calls", testNow.AddDate(0, 0, -1), 500)
	f.create(t, "low-usage", "user", thresholdRule("api_calls", "sum", "last_30_days", "<", 100))

	resp, err := f.svc.Members(context.Background(), segmentdomain.MembersRequest{
		Key: "low-usage", EntityKind: "user", Page: pagination.Page{Page: 1, PageSize: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"idle"}, resp.Items, "directory users without points match via the zero default; busy does not")
}

func TestMembers_EntityAttribute(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a-admin", "admin", false)
	f.seedUser(t, "b-member", "member", false)
	f.seedUser(t, "c-admin", "admin", false)
	f.create(t, "admins", "user", segmentdomain.Rule{
		Kind: segmentdomain.RuleEntityAttribute,
		EntityAttribute: &segmentdomain.EntityAttributeRule{
			Attribute: "role", Op: "==", Value: "admin",
		},
	})

	resp, err := f.svc.Members(context.Background(), segmentdomain.MembersRequest{
		Key: "admins", EntityKind: "user", Page: pagination.Page{Page: 1, PageSize: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-admin", "c-admin"}, resp.Items)
	assert.Equal(t, int64(2), resp.Info.Total)
}
