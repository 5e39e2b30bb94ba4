package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	segmentdomain "github.com/pulsekit/pulse/internal/segment/domain"
	tablebucketdomain "github.com/pulsekit/pulse/internal/tablebucket/domain"
	"github.com/pulsekit/pulse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Segments segmentdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	segments segmentdomain.Service
}

func NewService(p Params) tablebucketdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tablebucket.service"),
		genID:    p.GenID,
		segments: p.Segments,
	}
}

func (s *Service) Create(ctx context.Context, req tablebucketdomain.CreateBucketRequest) (*tablebucketdomain.TableBucket, error) {
	tableID := strings.TrimSpace(req.TableID)
	if tableID == "" {
		return nil, tablebucketdomain.ErrInvalidTableID
	}
	columnKey := strings.TrimSpace(req.ColumnKey)
	if columnKey == "" {
		return nil, tablebucketdomain.ErrInvalidColumnKey
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return nil, tablebucketdomain.ErrInvalidLabel
	}
	entityKind := strings.TrimSpace(req.EntityKind)
	if entityKind == "" {
		return nil, tablebucketdomain.ErrInvalidEntityKind
	}

	// The referenced segment must exist and carry the same entity kind,
	// otherwise every later assignment would fail.
	segment, err := s.segments.GetByKey(ctx, req.SegmentKey)
	if err != nil {
		if errors.Is(err, segmentdomain.ErrNotFound) {
			return nil, tablebucketdomain.ErrInvalidSegmentKey
		}
		return nil, err
	}
	if segment.EntityKind != entityKind {
		return nil, tablebucketdomain.ErrInvalidEntityKind
	}

	bucket := &tablebucketdomain.TableBucket{
		ID:         s.genID.Generate(),
		TableID:    tableID,
		ColumnKey:  columnKey,
		EntityKind: entityKind,
		SegmentKey: segment.Key,
		Label:      label,
		SortOrder:  req.SortOrder,
	}
	if err := s.db.WithContext(ctx).Create(bucket).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, tablebucketdomain.ErrSlotTaken
		}
		return nil, err
	}

	s.log.Info("table bucket created",
		zap.String("table_id", tableID),
		zap.String("column_key", columnKey),
		zap.String("segment_key", segment.Key),
		zap.Int("sort_order", req.SortOrder),
	)
	return bucket, nil
}

func (s *Service) ListColumn(ctx context.Context, tableID, columnKey string) ([]tablebucketdomain.TableBucket, error) {
	if strings.TrimSpace(tableID) == "" {
		return nil, tablebucketdomain.ErrInvalidTableID
	}
	if strings.TrimSpace(columnKey) == "" {
		return nil, tablebucketdomain.ErrInvalidColumnKey
	}
	var buckets []tablebucketdomain.TableBucket
	// The slot index keeps sort_order unique per column; the label and
	// segment key tie-breaks guard the ordering if that ever loosens.
	err := s.db.WithContext(ctx).
		Where("table_id = ? AND column_key = ?", strings.TrimSpace(tableID), strings.TrimSpace(columnKey)).
		Order("sort_order ASC, label ASC, segment_key ASC").
		Find(&buckets).Error
	return buckets, err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return tablebucketdomain.ErrNotFound
	}
	result := s.db.WithContext(ctx).Delete(&tablebucketdomain.TableBucket{}, "id = ?", parsed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tablebucketdomain.ErrNotFound
	}
	return nil
}

// Assign walks the column's buckets in sort order and gives each candidate
// to the first bucket whose segment matches it. Evaluation is deliberately
// sequential: a later bucket must never see an entity a prior bucket
// already claimed.
func (s *Service) Assign(ctx context.Context, req tablebucketdomain.AssignRequest) (*tablebucketdomain.AssignResponse, error) {
	if len(req.EntityIDs) > tablebucketdomain.MaxAssignEntityIDs {
		return nil, tablebucketdomain.ErrTooManyEntityIDs
	}

	buckets, err := s.ListColumn(ctx, req.TableID, req.ColumnKey)
	if err != nil {
		return nil, err
	}

	values := make(map[string]*tablebucketdomain.Assignment, len(req.EntityIDs))
	remaining := make([]string, 0, len(req.EntityIDs))
	for _, id := range req.EntityIDs {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if _, seen := values[id]; seen {
			continue
		}
		values[id] = nil
		remaining = append(remaining, id)
	}

	for _, bucket := range buckets {
		if len(remaining) == 0 {
			break
		}
		matched, err := s.segments.EvaluateBatch(ctx, segmentdomain.EvaluateBatchRequest{
			Key:        bucket.SegmentKey,
			EntityKind: strings.TrimSpace(req.EntityKind),
			EntityIDs:  remaining,
		})
		if err != nil {
			return nil, err
		}

		claimed := make(map[string]struct{}, len(matched))
		for _, id := range matched {
			claimed[id] = struct{}{}
			values[id] = &tablebucketdomain.Assignment{
				BucketLabel: bucket.Label,
				SegmentKey:  bucket.SegmentKey,
			}
		}

		next := remaining[:0]
		for _, id := range remaining {
			if _, ok := claimed[id]; !ok {
				next = append(next, id)
			}
		}
		remaining = next
	}

	return &tablebucketdomain.AssignResponse{Values: values}, nil
}
