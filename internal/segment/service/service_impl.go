package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pulsekit/pulse/internal/clock"
	directorydomain "github.com/pulsekit/pulse/internal/directory/domain"
	segmentdomain "github.com/pulsekit/pulse/internal/segment/domain"
	"github.com/pulsekit/pulse/internal/telemetry"
	"github.com/pulsekit/pulse/pkg/db"
	"github.com/pulsekit/pulse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      segmentdomain.Repository
	Directory directorydomain.Service
	Clock     clock.Clock
	Metrics   *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      segmentdomain.Repository
	directory directorydomain.Service
	clock     clock.Clock
	metrics   *telemetry.Metrics
}

func NewService(p Params) segmentdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("segment.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		directory: p.Directory,
		clock:     p.Clock,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req segmentdomain.CreateSegmentRequest) (*segmentdomain.Segment, error) {
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return nil, segmentdomain.ErrInvalidKey
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return nil, segmentdomain.ErrInvalidLabel
	}
	entityKind := strings.TrimSpace(req.EntityKind)
	if entityKind == "" {
		return nil, segmentdomain.ErrInvalidEntityKind
	}
	if err := validateRuleForKind(req.Rule, entityKind); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(req.Rule)
	if err != nil {
		return nil, segmentdomain.ErrInvalidRule
	}

	segment := &segmentdomain.Segment{
		ID:         s.genID.Generate(),
		Key:        key,
		EntityKind: entityKind,
		Label:      label,
		Rule:       datatypes.JSON(raw),
		IsActive:   true,
	}
	if err := s.repo.Create(ctx, segment); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, segmentdomain.ErrKeyExists
		}
		return nil, err
	}

	s.log.Info("segment created",
		zap.String("key", key),
		zap.String("entity_kind", entityKind),
		zap.String("rule_kind", req.Rule.Kind),
	)
	return segment, nil
}

func (s *Service) Update(ctx context.Context, req segmentdomain.UpdateSegmentRequest) (*segmentdomain.Segment, error) {
	segment, err := s.repo.FindByKey(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	if segment == nil {
		return nil, segmentdomain.ErrNotFound
	}

	if req.Label != nil {
		label := strings.TrimSpace(*req.Label)
		if label == "" {
			return nil, segmentdomain.ErrInvalidLabel
		}
		segment.Label = label
	}
	if req.Rule != nil {
		if err := validateRuleForKind(*req.Rule, segment.EntityKind); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(*req.Rule)
		if err != nil {
			return nil, segmentdomain.ErrInvalidRule
		}
		segment.Rule = datatypes.JSON(raw)
	}
	if req.IsActive != nil {
		segment.IsActive = *req.IsActive
	}

	if err := s.repo.Save(ctx, segment); err != nil {
		return nil, err
	}
	return segment, nil
}

func (s *Service) List(ctx context.Context, entityKind string) ([]segmentdomain.Segment, error) {
	return s.repo.List(ctx, entityKind)
}

func (s *Service) GetByKey(ctx context.Context, key string) (*segmentdomain.Segment, error) {
	segment, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if segment == nil {
		return nil, segmentdomain.ErrNotFound
	}
	return segment, nil
}

func (s *Service) Evaluate(ctx context.Context, req segmentdomain.EvaluateRequest) (*segmentdomain.Evaluation, error) {
	entityID := strings.TrimSpace(req.EntityID)
	if entityID == "" {
		return nil, segmentdomain.ErrInvalidEntityID
	}
	segment, rule, err := s.loadForEvaluation(ctx, req.Key, req.EntityKind)
	if err != nil {
		return nil, err
	}
	if !segment.IsActive {
		return &segmentdomain.Evaluation{}, nil
	}
	s.recordEvaluation(rule.Kind)

	switch rule.Kind {
	case segmentdomain.RuleStaticEntityIDs:
		for _, id := range rule.StaticEntityIDs.EntityIDs {
			if id == entityID {
				return &segmentdomain.Evaluation{Matches: true}, nil
			}
		}
		return &segmentdomain.Evaluation{}, nil

	case segmentdomain.RuleAllEntities:
		attrs, err := s.directory.Lookup(ctx, entityID)
		if err != nil {
			return nil, err
		}
		return &segmentdomain.Evaluation{Matches: attrs != nil}, nil

	case segmentdomain.RuleEntityAttribute:
		attrs, err := s.directory.Lookup(ctx, entityID)
		if err != nil {
			return nil, err
		}
		if attrs == nil {
			return &segmentdomain.Evaluation{}, nil
		}
		matches, err := attributeMatches(*rule.EntityAttribute, *attrs)
		if err != nil {
			return nil, err
		}
		return &segmentdomain.Evaluation{Matches: matches}, nil

	case segmentdomain.RuleMetricThreshold:
		return s.evaluateThreshold(ctx, segment.EntityKind, entityID, rule.MetricThreshold)

	default:
		return nil, segmentdomain.ErrUnknownRuleKind
	}
}

func (s *Service) Members(ctx context.Context, req segmentdomain.MembersRequest) (*segmentdomain.MembersResponse, error) {
	segment, rule, err := s.loadForEvaluation(ctx, req.Key, req.EntityKind)
	if err != nil {
		return nil, err
	}
	page := req.Page.Normalize()
	if !segment.IsActive {
		return &segmentdomain.MembersResponse{Items: []string{}, Info: page.Info(0)}, nil
	}
	s.recordEvaluation(rule.Kind)

	switch rule.Kind {
	case segmentdomain.RuleStaticEntityIDs:
		ids := append([]string{}, rule.StaticEntityIDs.EntityIDs...)
		sort.Strings(ids)
		return pageInMemory(ids, page), nil

	case segmentdomain.RuleAllEntities:
		ids, total, err := s.directory.ListIDs(ctx, page)
		if err != nil {
			return nil, err
		}
		return &segmentdomain.MembersResponse{Items: emptyIfNil(ids), Info: page.Info(total)}, nil

	case segmentdomain.RuleEntityAttribute:
		match, err := toAttributeMatch(*rule.EntityAttribute)
		if err != nil {
			return nil, err
		}
		ids, total, err := s.directory.ListMatchingIDs(ctx, match, page)
		if err != nil {
			return nil, err
		}
		return &segmentdomain.MembersResponse{Items: emptyIfNil(ids), Info: page.Info(total)}, nil

	case segmentdomain.RuleMetricThreshold:
		ids, err := s.thresholdMembers(ctx, segment.EntityKind, rule.MetricThreshold)
		if err != nil {
			return nil, err
		}
		return pageInMemory(ids, page), nil

	default:
		return nil, segmentdomain.ErrUnknownRuleKind
	}
}

// EvaluateBatch tests up to MaxBatchEntityIDs candidates in one storage
// round trip per rule and returns the matching subset in input order.
func (s *Service) EvaluateBatch(ctx context.Context, req segmentdomain.EvaluateBatchRequest) ([]string, error) {
	if len(req.EntityIDs) > segmentdomain.MaxBatchEntityIDs {
		return nil, segmentdomain.ErrTooManyEntityIDs
	}
	candidates := make([]string, 0, len(req.EntityIDs))
	for _, id := range req.EntityIDs {
		if id = strings.TrimSpace(id); id != "" {
			candidates = append(candidates, id)
		}
	}

	segment, rule, err := s.loadForEvaluation(ctx, req.Key, req.EntityKind)
	if err != nil {
		return nil, err
	}
	if !segment.IsActive || len(candidates) == 0 {
		return []string{}, nil
	}
	s.recordEvaluation(rule.Kind)

	switch rule.Kind {
	case segmentdomain.RuleStaticEntityIDs:
		allowed := make(map[string]struct{}, len(rule.StaticEntityIDs.EntityIDs))
		for _, id := range rule.StaticEntityIDs.EntityIDs {
			allowed[id] = struct{}{}
		}
		return intersectInOrder(candidates, allowed), nil

	case segmentdomain.RuleAllEntities:
		existing, err := s.directory.FilterExisting(ctx, candidates)
		if err != nil {
			return nil, err
		}
		return intersectInOrder(candidates, toSet(existing)), nil

	case segmentdomain.RuleEntityAttribute:
		match, err := toAttributeMatch(*rule.EntityAttribute)
		if err != nil {
			return nil, err
		}
		matched, err := s.directory.FilterMatching(ctx, match, candidates)
		if err != nil {
			return nil, err
		}
		return intersectInOrder(candidates, toSet(matched)), nil

	case segmentdomain.RuleMetricThreshold:
		return s.thresholdBatch(ctx, segment.EntityKind, candidates, rule.MetricThreshold)

	default:
		return nil, segmentdomain.ErrUnknownRuleKind
	}
}

// loadForEvaluation fetches the segment, checks the caller's entity kind
// against it and decodes the stored rule.
func (s *Service) loadForEvaluation(ctx context.Context, key, entityKind string) (*segmentdomain.Segment, *segmentdomain.Rule, error) {
	segment, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if segment == nil {
		return nil, nil, segmentdomain.ErrNotFound
	}
	if kind := strings.TrimSpace(entityKind); kind != "" && kind != segment.EntityKind {
		return nil, nil, segmentdomain.ErrEntityKindMismatch
	}

	var rule segmentdomain.Rule
	if err := json.Unmarshal(segment.Rule, &rule); err != nil {
		return nil, nil, err
	}
	return segment, &rule, nil
}

func (s *Service) recordEvaluation(kind string) {
	if s.metrics != nil {
		s.metrics.RecordSegmentEvaluation(kind)
	}
}

// validateRuleForKind runs structural validation plus the directory-backed
// kind restriction: the directory only knows users.
func validateRuleForKind(rule segmentdomain.Rule, entityKind string) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	switch rule.Kind {
	case segmentdomain.RuleAllEntities, segmentdomain.RuleEntityAttribute:
		if entityKind != segmentdomain.EntityKindUser {
			return segmentdomain.ErrUnsupportedEntityKind
		}
	}
	return nil
}

func toAttributeMatch(rule segmentdomain.EntityAttributeRule) (directorydomain.AttributeMatch, error) {
	if !directorydomain.ValidAttribute(rule.Attribute) {
		return directorydomain.AttributeMatch{}, directorydomain.ErrInvalidAttribute
	}
	return directorydomain.AttributeMatch{
		Attribute: rule.Attribute,
		Value:     rule.Value,
		Negate:    rule.Op == "!=",
	}, nil
}

func attributeMatches(rule segmentdomain.EntityAttributeRule, attrs directorydomain.Attributes) (bool, error) {
	var equal bool
	switch rule.Attribute {
	case directorydomain.AttributeRole:
		want, ok := rule.Value.(string)
		if !ok {
			return false, directorydomain.ErrInvalidAttributeValue
		}
		equal = attrs.Role == want
	case directorydomain.AttributeEmailVerified:
		want, ok := rule.Value.(bool)
		if !ok {
			return false, directorydomain.ErrInvalidAttributeValue
		}
		equal = attrs.EmailVerified == want
	case directorydomain.AttributeLocked:
		want, ok := rule.Value.(bool)
		if !ok {
			return false, directorydomain.ErrInvalidAttributeValue
		}
		equal = attrs.Locked == want
	default:
		return false, directorydomain.ErrInvalidAttribute
	}
	if rule.Op == "!=" {
		return !equal, nil
	}
	return equal, nil
}

func intersectInOrder(candidates []string, allowed map[string]struct{}) []string {
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func pageInMemory(ids []string, page pagination.Page) *segmentdomain.MembersResponse {
	total := int64(len(ids))
	lo := page.Offset()
	if lo > len(ids) {
		lo = len(ids)
	}
	hi := lo + page.Limit()
	if hi > len(ids) {
		hi = len(ids)
	}
	return &segmentdomain.MembersResponse{Items: append([]string{}, ids[lo:hi]...), Info: page.Info(total)}
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
