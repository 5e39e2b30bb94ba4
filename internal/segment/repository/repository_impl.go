package repository

import (
	"context"
	"errors"
	"strings"

	segmentdomain "github.com/pulsekit/pulse/internal/segment/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) segmentdomain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, segment *segmentdomain.Segment) error {
	return r.db.WithContext(ctx).Create(segment).Error
}

func (r *repo) Save(ctx context.Context, segment *segmentdomain.Segment) error {
	return r.db.WithContext(ctx).Save(segment).Error
}

func (r *repo) FindByKey(ctx context.Context, key string) (*segmentdomain.Segment, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var segment segmentdomain.Segment
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&segment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &segment, nil
}

func (r *repo) List(ctx context.Context, entityKind string) ([]segmentdomain.Segment, error) {
	stmt := r.db.WithContext(ctx).Model(&segmentdomain.Segment{})
	if kind := strings.TrimSpace(entityKind); kind != "" {
		stmt = stmt.Where("entity_kind = ?", kind)
	}
	var segments []segmentdomain.Segment
	err := stmt.Order("key ASC").Find(&segments).Error
	return segments, err
}
