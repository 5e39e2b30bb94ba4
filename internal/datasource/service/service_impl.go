package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	datasourcedomain "github.com/pulsekit/pulse/internal/datasource/domain"
	"github.com/pulsekit/pulse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) datasourcedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("datasource.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req datasourcedomain.CreateDataSourceRequest) (*datasourcedomain.DataSource, error) {
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return nil, datasourcedomain.ErrInvalidKey
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, datasourcedomain.ErrInvalidName
	}

	now := time.Now().UTC()
	source := &datasourcedomain.DataSource{
		ID:        s.genID.Generate(),
		Key:       key,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(source).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, datasourcedomain.ErrKeyExists
		}
		return nil, err
	}
	return source, nil
}

func (s *Service) List(ctx context.Context) ([]datasourcedomain.DataSource, error) {
	var sources []datasourcedomain.DataSource
	err := s.db.WithContext(ctx).Order("key ASC").Find(&sources).Error
	return sources, err
}

func (s *Service) GetByID(ctx context.Context, id string) (*datasourcedomain.DataSource, error) {
	sourceID, err := parseID(id)
	if err != nil {
		return nil, datasourcedomain.ErrNotFound
	}
	var source datasourcedomain.DataSource
	if err := s.db.WithContext(ctx).First(&source, "id = ?", sourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, datasourcedomain.ErrNotFound
		}
		return nil, err
	}
	return &source, nil
}

// Delete removes the data source together with its sync runs and points. The
// three deletes run in one transaction so a retry never sees a half-removed
// source.
func (s *Service) Delete(ctx context.Context, id string) error {
	source, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM metric_points WHERE data_source_id = ?`, source.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM sync_runs WHERE data_source_id = ?`, source.ID).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM data_sources WHERE id = ?`, source.ID).Error
	})
}

func (s *Service) StartSyncRun(ctx context.Context, req datasourcedomain.StartSyncRunRequest) (*datasourcedomain.SyncRun, error) {
	source, err := s.GetByID(ctx, req.DataSourceID)
	if err != nil {
		if errors.Is(err, datasourcedomain.ErrNotFound) {
			return nil, datasourcedomain.ErrInvalidDataSource
		}
		return nil, err
	}

	now := time.Now().UTC()
	run := &datasourcedomain.SyncRun{
		ID:           s.genID.Generate(),
		DataSourceID: source.ID,
		ExternalID:   uuid.NewString(),
		Status:       datasourcedomain.SyncRunStatusRunning,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) FinishSyncRun(ctx context.Context, req datasourcedomain.FinishSyncRunRequest) (*datasourcedomain.SyncRun, error) {
	status := strings.TrimSpace(req.Status)
	if status != datasourcedomain.SyncRunStatusCompleted && status != datasourcedomain.SyncRunStatusFailed {
		return nil, datasourcedomain.ErrInvalidStatus
	}

	runID, err := parseID(req.SyncRunID)
	if err != nil {
		return nil, datasourcedomain.ErrSyncRunNotFound
	}

	var run datasourcedomain.SyncRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, datasourcedomain.ErrSyncRunNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &now
	run.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, errors.New("invalid_id")
	}
	return id, nil
}
