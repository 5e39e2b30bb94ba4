package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	directorydomain "github.com/pulsekit/pulse/internal/directory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Enforcer  *casbin.SyncedEnforcer
	Directory directorydomain.Service
}

type ServiceImpl struct {
	db        *gorm.DB
	log       *zap.Logger
	enforcer  *casbin.SyncedEnforcer
	directory directorydomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:        p.DB,
		log:       p.Log.Named("authorization.service"),
		enforcer:  p.Enforcer,
		directory: p.Directory,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := s.resolveActor(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// resolveActor maps an actor string onto its casbin role. API consumers
// identify as "system"; humans as "user:<id>" with the role coming from
// the directory.
func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, error) {
	if actor == "system" {
		return actor, "role:system", nil
	}
	if id, ok := strings.CutPrefix(actor, "user:"); ok {
		id = strings.TrimSpace(id)
		if id == "" {
			return "", "", ErrInvalidActor
		}
		attrs, err := s.directory.Lookup(ctx, id)
		if err != nil {
			return "", "", err
		}
		if attrs == nil || attrs.Locked {
			return "", "", ErrForbidden
		}
		role := strings.ToLower(strings.TrimSpace(attrs.Role))
		if role == "" {
			return "", "", ErrForbidden
		}
		return actor, fmt.Sprintf("role:%s", role), nil
	}
	return "", "", ErrInvalidActor
}

func (s *ServiceImpl) ensureGrouping(subject, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewers browse everything but change nothing.
		{"role:viewer", ObjectSegment, ActionView},
		{"role:viewer", ObjectTableBucket, ActionView},
		{"role:viewer", ObjectDataSource, ActionView},
		{"role:viewer", ObjectQuery, ActionRun},

		// Admins manage the catalog.
		{"role:admin", ObjectSegment, ActionView},
		{"role:admin", ObjectSegment, ActionCreate},
		{"role:admin", ObjectSegment, ActionUpdate},
		{"role:admin", ObjectTableBucket, ActionView},
		{"role:admin", ObjectTableBucket, ActionCreate},
		{"role:admin", ObjectTableBucket, ActionDelete},
		{"role:admin", ObjectDataSource, ActionView},
		{"role:admin", ObjectDataSource, ActionCreate},
		{"role:admin", ObjectDataSource, ActionUpdate},
		{"role:admin", ObjectDataSource, ActionDelete},
		{"role:admin", ObjectQuery, ActionRun},

		// The system subject covers automated ingestion plus everything
		// an admin can do.
		{"role:system", ObjectPoint, ActionIngest},
		{"role:system", ObjectSegment, ActionView},
		{"role:system", ObjectSegment, ActionCreate},
		{"role:system", ObjectSegment, ActionUpdate},
		{"role:system", ObjectTableBucket, ActionView},
		{"role:system", ObjectTableBucket, ActionCreate},
		{"role:system", ObjectTableBucket, ActionDelete},
		{"role:system", ObjectDataSource, ActionView},
		{"role:system", ObjectDataSource, ActionCreate},
		{"role:system", ObjectDataSource, ActionUpdate},
		{"role:system", ObjectDataSource, ActionDelete},
		{"role:system", ObjectQuery, ActionRun},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
