package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	datasourcedomain "github.com/pulsekit/pulse/internal/datasource/domain"
	"github.com/pulsekit/pulse/internal/metricsql"
	pointdomain "github.com/pulsekit/pulse/internal/point/domain"
	"github.com/pulsekit/pulse/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertChunkSize bounds the parameter count of a single statement. Chunks
// are applied independently; a mid-batch failure leaves already-applied
// chunks in place and the whole batch is safe to retry.
const upsertChunkSize = 200

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *telemetry.Metrics
}

func NewService(p Params) pointdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("point.service"),
		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

func (s *Service) Upsert(ctx context.Context, req pointdomain.UpsertRequest) (pointdomain.UpsertResult, error) {
	if len(req.Points) == 0 {
		return pointdomain.UpsertResult{}, pointdomain.ErrEmptyBatch
	}

	syncRunID, err := s.resolveSyncRun(ctx, req.SyncRunID)
	if err != nil {
		return pointdomain.UpsertResult{}, err
	}

	batch := &datasourcedomain.IngestBatch{
		ID:         s.genID.Generate(),
		ExternalID: uuid.NewString(),
		Source:     strings.TrimSpace(req.Source),
		Received:   len(req.Points),
		CreatedAt:  time.Now().UTC(),
	}

	rows := make([]pointdomain.MetricPoint, 0, len(req.Points))
	for _, input := range req.Points {
		row, ok := s.buildRow(input, syncRunID, batch.ID)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	rows = dedupeRows(rows)

	ingested := 0
	for start := 0; start < len(rows); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		if err := s.upsertChunk(ctx, chunk); err != nil {
			s.log.Error("point chunk upsert failed",
				zap.Int("applied", ingested),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err))
			return pointdomain.UpsertResult{}, err
		}
		ingested += len(chunk)
	}

	batch.Ingested = ingested
	if err := s.db.WithContext(ctx).Create(batch).Error; err != nil {
		// The points are already applied; losing the batch record is not
		// worth failing the request over.
		s.log.Warn("failed to record ingest batch", zap.Error(err))
	}

	if dropped := len(req.Points) - ingested; dropped > 0 {
		s.log.Warn("dropped malformed points from batch",
			zap.Int("dropped", dropped),
			zap.Int("received", len(req.Points)))
	}
	if s.metrics != nil {
		s.metrics.RecordIngest(batch.Source, len(req.Points), ingested)
	}

	return pointdomain.UpsertResult{
		Received: len(req.Points),
		Ingested: ingested,
		BatchID:  batch.ExternalID,
	}, nil
}

// buildRow validates one input and turns it into a storable row. Invalid
// inputs report false and are dropped from the batch.
func (s *Service) buildRow(input pointdomain.PointInput, syncRunID *snowflake.ID, batchID snowflake.ID) (pointdomain.MetricPoint, bool) {
	entityKind := strings.TrimSpace(input.EntityKind)
	entityID := strings.TrimSpace(input.EntityID)
	metricKey := strings.TrimSpace(input.MetricKey)
	if entityKind == "" || entityID == "" || metricKey == "" {
		return pointdomain.MetricPoint{}, false
	}

	dataSourceID, err := snowflake.ParseString(strings.TrimSpace(input.DataSourceID))
	if err != nil || dataSourceID == 0 {
		return pointdomain.MetricPoint{}, false
	}

	date, ok := parseDate(input.Date)
	if !ok {
		return pointdomain.MetricPoint{}, false
	}

	granularity, ok := metricsql.ParseGranularity(input.Granularity)
	if !ok {
		return pointdomain.MetricPoint{}, false
	}

	now := time.Now().UTC()
	row := pointdomain.MetricPoint{
		ID:             s.genID.Generate(),
		EntityKind:     entityKind,
		EntityID:       entityID,
		MetricKey:      metricKey,
		DataSourceID:   dataSourceID,
		SyncRunID:      syncRunID,
		IngestBatchID:  &batchID,
		Date:           date,
		Granularity:    string(granularity),
		Value:          input.Value,
		DimensionsHash: pointdomain.HashDimensions(input.Dimensions),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(input.Dimensions) > 0 {
		row.Dimensions = datatypes.JSONMap(input.Dimensions)
	}
	return row, true
}

// dedupeRows collapses rows sharing one upsert identity. Postgres rejects a
// multi-row ON CONFLICT statement that updates the same row twice, so the
// collision is resolved here instead; the last occurrence wins, matching
// the last-write-wins semantics of repeated batches.
func dedupeRows(rows []pointdomain.MetricPoint) []pointdomain.MetricPoint {
	type identity struct {
		dataSourceID snowflake.ID
		metricKey    string
		date         int64
		granularity  string
		hash         string
	}
	seen := make(map[identity]int, len(rows))
	out := rows[:0]
	for _, row := range rows {
		key := identity{row.DataSourceID, row.MetricKey, row.Date.UnixNano(), row.Granularity, row.DimensionsHash}
		if idx, ok := seen[key]; ok {
			out[idx] = row
			continue
		}
		seen[key] = len(out)
		out = append(out, row)
	}
	return out
}

func (s *Service) upsertChunk(ctx context.Context, chunk []pointdomain.MetricPoint) error {
	if len(chunk) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "data_source_id"},
			{Name: "metric_key"},
			{Name: "date"},
			{Name: "granularity"},
			{Name: "dimensions_hash"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"value", "sync_run_id", "ingest_batch_id", "updated_at"}),
	}).Create(&chunk).Error
}

func (s *Service) resolveSyncRun(ctx context.Context, raw string) (*snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var run datasourcedomain.SyncRun
	err := s.db.WithContext(ctx).Where("external_id = ?", raw).First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pointdomain.ErrInvalidSyncRun
		}
		return nil, err
	}
	return &run.ID, nil
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
