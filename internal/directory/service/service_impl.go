package service

import (
	"context"
	"errors"
	"strings"

	directorydomain "github.com/pulsekit/pulse/internal/directory/domain"
	"github.com/pulsekit/pulse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) directorydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("directory.service"),
	}
}

func (s *Service) Lookup(ctx context.Context, entityID string) (*directorydomain.Attributes, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, nil
	}
	var user directorydomain.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", entityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &directorydomain.Attributes{
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
		Locked:        user.Locked,
	}, nil
}

func (s *Service) ListIDs(ctx context.Context, page pagination.Page) ([]string, int64, error) {
	page = page.Normalize()

	var total int64
	if err := s.db.WithContext(ctx).Model(&directorydomain.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ids []string
	err := s.db.WithContext(ctx).
		Model(&directorydomain.User{}).
		Order("id ASC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, 0, err
	}
	return ids, total, nil
}

// matchClause maps an AttributeMatch onto a column predicate. Role compares
// as text, the flag attributes as booleans.
func matchClause(match directorydomain.AttributeMatch) (string, any, error) {
	var column string
	switch match.Attribute {
	case directorydomain.AttributeRole:
		column = "role"
		val, ok := match.Value.(string)
		if !ok {
			return "", nil, directorydomain.ErrInvalidAttributeValue
		}
		if match.Negate {
			return column + " <> ?", val, nil
		}
		return column + " = ?", val, nil
	case directorydomain.AttributeEmailVerified:
		column = "email_verified"
	case directorydomain.AttributeLocked:
		column = "locked"
	default:
		return "", nil, directorydomain.ErrInvalidAttribute
	}
	val, ok := match.Value.(bool)
	if !ok {
		return "", nil, directorydomain.ErrInvalidAttributeValue
	}
	if match.Negate {
		val = !val
	}
	return column + " = ?", val, nil
}

func (s *Service) FilterMatching(ctx context.Context, match directorydomain.AttributeMatch, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cond, arg, err := matchClause(match)
	if err != nil {
		return nil, err
	}
	var matched []string
	err = s.db.WithContext(ctx).
		Model(&directorydomain.User{}).
		Where("id IN ?", ids).
		Where(cond, arg).
		Order("id ASC").
		Pluck("id", &matched).Error
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func (s *Service) ListMatchingIDs(ctx context.Context, match directorydomain.AttributeMatch, page pagination.Page) ([]string, int64, error) {
	page = page.Normalize()

	cond, arg, err := matchClause(match)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&directorydomain.User{}).Where(cond, arg).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ids []string
	err = s.db.WithContext(ctx).
		Model(&directorydomain.User{}).
		Where(cond, arg).
		Order("id ASC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, 0, err
	}
	return ids, total, nil
}

func (s *Service) FilterExisting(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var existing []string
	err := s.db.WithContext(ctx).
		Model(&directorydomain.User{}).
		Where("id IN ?", ids).
		Order("id ASC").
		Pluck("id", &existing).Error
	if err != nil {
		return nil, err
	}
	return existing, nil
}
