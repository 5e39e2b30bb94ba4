package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	drilldowndomain "github.com/pulsekit/pulse/internal/drilldown/domain"
	pointdomain "github.com/pulsekit/pulse/internal/point/domain"
	querydomain "github.com/pulsekit/pulse/internal/query/domain"
	queryservice "github.com/pulsekit/pulse/internal/query/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	svc   drilldowndomain.Service
	query querydomain.Service
	db    *gorm.DB
	node  *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&pointdomain.MetricPoint{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &fixture{
		svc:   NewService(Params{DB: db, Log: zap.NewNop()}),
		query: queryservice.NewService(queryservice.Params{DB: db, Log: zap.NewNop()}),
		db:    db,
		node:  node,
	}
}

func (f *fixture) seed(t *testing.T, entityID string, date time.Time, value int64, dims map[string]any) {
	t.Helper()
	row := pointdomain.MetricPoint{
		ID:             f.node.Generate(),
		EntityKind:     "user",
		EntityID:       entityID,
		MetricKey:      "api_calls",
		DataSourceID:   f.node.Generate(),
		Date:           date,
		Granularity:    "daily",
		Value:          decimal.NewFromInt(value),
		DimensionsHash: pointdomain.HashDimensions(dims),
	}
	if len(dims) > 0 {
		row.Dimensions = datatypes.JSONMap(dims)
	}
	require.NoError(t, f.db.Create(&row).Error)
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func TestResolve_DirectFilter(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", day(1), 10, nil)
	f.seed(t, "u2", day(1), 20, nil)

	resp, err := f.svc.Resolve(context.Background(), drilldowndomain.Request{
		PointFilter: &drilldowndomain.PointFilter{
			MetricKey: "api_calls",
			Filters:   querydomain.Filters{EntityID: "u1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Points, 1)
	assert.Equal(t, "u1", resp.Points[0].EntityID)
	assert.Equal(t, int64(1), resp.Pagination.Total, "total counts only matching rows")
}

func TestResolve_RoundTripFromAggregateRow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", day(1), 10, map[string]any{"region": "eu"})
	f.seed(t, "u1", day(1), 5, map[string]any{"region": "us"})
	f.seed(t, "u1", day(2), 7, map[string]any{"region": "eu"})

	base := querydomain.Query{
		MetricKey: "api_calls",
		Agg:       "sum",
		Bucket:    "day",
		Start:     "2024-01-01",
		End:       "2024-01-03",
		GroupBy:   []string{"region"},
	}
	result, err := f.query.Run(context.Background(), base)
	require.NoError(t, err)
	require.NotEmpty(t, result.Data)

	// Drill into the first returned row; only the points inside its bucket
	// window with its exact dimension value may come back.
	row := result.Data[0]
	resp, err := f.svc.Resolve(context.Background(), drilldowndomain.Request{
		BaseQuery: &base,
		RowContext: &drilldowndomain.RowContext{
			Bucket:  row.Bucket,
			GroupBy: row.GroupBy,
		},
	})
	require.NoError(t, err)

	var sum decimal.Decimal
	for _, p := range resp.Points {
		parsed, perr := time.Parse(time.RFC3339, p.Date)
		require.NoError(t, perr)
		assert.True(t, parsed.Equal(day(1)) || parsed.After(day(1)))
		assert.True(t, parsed.Before(day(2)), "points outside the bucket window must not leak in")
		assert.Equal(t, *row.GroupBy["region"], p.Dimensions["region"])
		sum = sum.Add(p.Value)
	}
	assert.True(t, sum.Equal(row.Value), "drilled points must sum back to the aggregate row")
}

func TestResolve_RoundTripNumericDimension(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", day(1), 10, map[string]any{"seats": 5})
	f.seed(t, "u2", day(1), 3, map[string]any{"seats": 12})

	base := querydomain.Query{
		MetricKey: "api_calls",
		Agg:       "sum",
		Bucket:    "day",
		Start:     "2024-01-01",
		End:       "2024-01-02",
		GroupBy:   []string{"seats"},
	}
	result, err := f.query.Run(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, result.Data, 2)

	// Non-string dimension values project as text; pinning them on the way
	// back must still find the points.
	for _, row := range result.Data {
		resp, err := f.svc.Resolve(context.Background(), drilldowndomain.Request{
			BaseQuery: &base,
			RowContext: &drilldowndomain.RowContext{
				Bucket:  row.Bucket,
				GroupBy: row.GroupBy,
			},
		})
		require.NoError(t, err)
		require.Len(t, resp.Points, 1)
		assert.True(t, resp.Points[0].Value.Equal(row.Value))
	}
}

func TestResolve_GroupByEntityPinsEntity(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", day(1), 10, nil)
	f.seed(t, "u2", day(1), 20, nil)

	base := querydomain.Query{
		MetricKey: "api_calls", Agg: "sum", Bucket: "day",
		Start: "2024-01-01", End: "2024-01-02",
		GroupByEntityID: true,
	}
	resp, err := f.svc.Resolve(context.Background(), drilldowndomain.Request{
		BaseQuery:  &base,
		RowContext: &drilldowndomain.RowContext{Bucket: "2024-01-01T00:00:00Z", EntityID: "u2"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Points, 1)
	assert.Equal(t, "u2", resp.Points[0].EntityID)

	// Grouping by entity without saying which row was clicked is an error.
	_, err = f.svc.Resolve(context.Background(), drilldowndomain.Request{
		BaseQuery:  &base,
		RowContext: &drilldowndomain.RowContext{Bucket: "2024-01-01T00:00:00Z"},
	})
	assert.ErrorIs(t, err, drilldowndomain.ErrMissingEntityID)
}

func TestResolve_FilterModeErrors(t *testing.T) {
	f := newFixture(t)
	base := querydomain.Query{MetricKey: "api_calls", Agg: "sum"}

	_, err := f.svc.Resolve(context.Background(), drilldowndomain.Request{})
	assert.ErrorIs(t, err, drilldowndomain.ErrMissingFilter)

	_, err = f.svc.Resolve(context.Background(), drilldowndomain.Request{
		PointFilter: &drilldowndomain.PointFilter{MetricKey: "api_calls"},
		BaseQuery:   &base,
	})
	assert.ErrorIs(t, err, drilldowndomain.ErrAmbiguousFilter)

	_, err = f.svc.Resolve(context.Background(), drilldowndomain.Request{BaseQuery: &base})
	assert.ErrorIs(t, err, drilldowndomain.ErrMissingRowContext)

	grouped := querydomain.Query{
		MetricKey: "api_calls", Agg: "sum", Bucket: "day",
		Start: "2024-01-01", End: "2024-01-02", GroupBy: []string{"region"},
	}
	_, err = f.svc.Resolve(context.Background(), drilldowndomain.Request{
		BaseQuery:  &grouped,
		RowContext: &drilldowndomain.RowContext{Bucket: "2024-01-01T00:00:00Z"},
	})
	assert.ErrorIs(t, err, drilldowndomain.ErrMissingDimension)
}

func TestResolve_Contributors(t *testing.T) {
	f := newFixture(t)
	// 25 entities so the entity breakdown must truncate to the top 20.
	for i := 0; i < 25; i++ {
		f.seed(t, fmt.Sprintf("u%02d", i), day(1), int64(100-i), nil)
	}

	resp, err := f.svc.Resolve(context.Background(), drilldowndomain.Request{
		PointFilter: &drilldowndomain.PointFilter{
			MetricKey: "api_calls",
			Start:     "2024-01-01",
			End:       "2024-01-02",
		},
		IncludeContributors: true,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Contributors)

	top := resp.Contributors.ByEntity
	require.Len(t, top, drilldowndomain.ContributorLimit)
	require.NotNil(t, top[0].Key)
	assert.Equal(t, "u00", *top[0].Key, "breakdowns sort by summed value descending")
	assert.True(t, top[0].Value.Equal(decimal.NewFromInt(100)))
	assert.True(t, top[0].Value.GreaterThanOrEqual(top[len(top)-1].Value))
}
