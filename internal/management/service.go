package management

import (
	"context"
	"encoding/json"

	"bindery/internal/constants"
	"bindery/internal/logger"
	"bindery/internal/rules"
	"bindery/internal/usage"
	pkgerrors "bindery/pkg/errors"
	"bindery/pkg/models"
)

type service struct {
	repo           rules.Repository
	store          usage.Store
	versioningRepo VersioningRepository
	events         *RuleEventProducer
	logger         logger.Logger
	auditEnabled   bool
}

type ServiceOption func(*service)

func WithVersioning(versioningRepo VersioningRepository) ServiceOption {
	return func(s *service) {
		s.versioningRepo = versioningRepo
		s.auditEnabled = true
	}
}

func WithRuleEvents(events *RuleEventProducer) ServiceOption {
	return func(s *service) {
		s.events = events
	}
}

func NewService(repo rules.Repository, store usage.Store, log logger.Logger, opts ...ServiceOption) Service {
	s := &service{
		repo:   repo,
		store:  store,
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireOwner(ctx context.Context) error {
	if !ActorFromContext(ctx).IsOwner() {
		return pkgerrors.ErrPermission
	}
	return nil
}

func (s *service) CreateRule(ctx context.Context, req CreateRuleRequest) (*rules.Rule, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	cfg, err := rules.DecodeConfig(rules.Type(req.Type), req.Config)
	if err != nil {
		return nil, pkgerrors.ErrInvalidRule.WithCause(err).WithDetail("field", "config")
	}

	rule := &rules.Rule{
		Name:        req.Name,
		Description: req.Description,
		Type:        rules.Type(req.Type),
		Enabled:     getEnabledValue(req.Enabled),
		Config:      cfg,
		CreatedBy:   changedBy(ctx),
	}

	return s.createRule(ctx, rule)
}

func (s *service) CreateRuleFromTemplate(ctx context.Context, req CreateFromTemplateRequest) (*rules.Rule, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	rule, err := rules.FromTemplate(req.Template, req.Overrides)
	if err != nil {
		if pkgerrors.IsInvalidRule(err) {
			return nil, err
		}
		return nil, pkgerrors.ErrInvalidRule.WithCause(err).WithDetail("field", "template")
	}
	rule.CreatedBy = changedBy(ctx)

	return s.createRule(ctx, rule)
}

func (s *service) createRule(ctx context.Context, rule *rules.Rule) (*rules.Rule, error) {
	if err := rules.Validate(rule); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		if pkgerrors.IsConflict(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.createVersionAndAudit(ctx, rule, "create", nil)
	s.publishRuleEvent(ctx, models.ActionCreate, rule)

	return rule, nil
}

func (s *service) ListRules(ctx context.Context) ([]rules.Rule, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	listed, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return listed, nil
}

func (s *service) GetRule(ctx context.Context, id string) (*rules.Rule, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}
	return s.getRule(ctx, id)
}

func (s *service) getRule(ctx context.Context, id string) (*rules.Rule, error) {
	rule, err := s.repo.Get(ctx, id)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return rule, nil
}

func (s *service) UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*rules.Rule, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	rule, err := s.getRule(ctx, id)
	if err != nil {
		return nil, err
	}

	oldValue, _ := ruleToMap(rule)

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if len(req.Config) > 0 {
		cfg, err := rules.DecodeConfig(rule.Type, req.Config)
		if err != nil {
			return nil, pkgerrors.ErrInvalidRule.WithCause(err).WithDetail("field", "config")
		}
		rule.Config = cfg
	}

	if err := rules.Validate(rule); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		if pkgerrors.IsNotFound(err) || pkgerrors.IsConflict(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.createVersionAndAudit(ctx, rule, "update", oldValue)
	s.publishRuleEvent(ctx, models.ActionUpdate, rule)

	return rule, nil
}

// DeleteRule removes the rule and every usage counter it accumulated. The
// counter cleanup is best-effort: a failure leaves orphaned counters that
// expire on their own, so it is logged rather than surfaced.
func (s *service) DeleteRule(ctx context.Context, id string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}

	rule, err := s.getRule(ctx, id)
	if err != nil {
		return err
	}

	oldValue, _ := ruleToMap(rule)

	if err := s.repo.Delete(ctx, id); err != nil {
		if pkgerrors.IsNotFound(err) {
			return err
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	if deleted, err := s.store.DeleteByRule(ctx, id); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to delete usage records for rule", "error", err, "rule_id", id)
	} else if deleted > 0 {
		s.logger.InfowCtx(ctx, "Deleted usage records for rule", "rule_id", id, "count", deleted)
	}

	if s.auditEnabled && s.versioningRepo != nil {
		auditLog := buildAuditLog(id, string(rule.Type), "delete", oldValue, nil, changedBy(ctx))
		_ = s.versioningRepo.CreateAuditLog(ctx, auditLog)
	}

	s.publishRuleEvent(ctx, models.ActionDelete, rule)
	return nil
}

func (s *service) SetRuleEnabled(ctx context.Context, id string, enabled bool) (*rules.Rule, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	rule, err := s.getRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.Enabled == enabled {
		return rule, nil
	}

	oldValue, _ := ruleToMap(rule)
	rule.Enabled = enabled

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	action := models.ActionEnable
	if !enabled {
		action = models.ActionDisable
	}

	s.createVersionAndAudit(ctx, rule, action, oldValue)
	s.publishRuleEvent(ctx, action, rule)

	return rule, nil
}

func (s *service) GetRuleUsage(ctx context.Context, id string) (*usage.Stats, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	if _, err := s.getRule(ctx, id); err != nil {
		return nil, err
	}

	stats, err := s.store.Stats(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return stats, nil
}

func (s *service) ListTemplates(_ context.Context) []string {
	return rules.TemplateKeys()
}

func (s *service) GetRuleVersions(ctx context.Context, ruleID string) ([]RuleVersion, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}
	if s.versioningRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "versioning not enabled")
	}

	versions, err := s.versioningRepo.GetVersions(ctx, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return versions, nil
}

func (s *service) GetAuditLogs(ctx context.Context, ruleID *string, ruleType string, limit int) ([]AuditLog, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}
	if s.versioningRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "audit logging not enabled")
	}
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}

	logs, err := s.versioningRepo.GetAuditLogs(ctx, ruleID, ruleType, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return logs, nil
}

func (s *service) createVersionAndAudit(ctx context.Context, rule *rules.Rule, action string, oldValue map[string]interface{}) {
	if !s.auditEnabled || s.versioningRepo == nil {
		return
	}

	ruleJSON, err := json.Marshal(rule)
	if err != nil {
		return
	}

	version := &RuleVersion{
		RuleID:    rule.ID,
		RuleType:  string(rule.Type),
		RuleData:  string(ruleJSON),
		Version:   1,
		ChangedBy: changedBy(ctx),
	}
	if next, err := s.versioningRepo.GetNextVersion(ctx, rule.ID); err == nil {
		version.Version = next
	}

	if err := s.versioningRepo.CreateVersion(ctx, version); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to write rule version", "error", err, "rule_id", rule.ID)
		return
	}

	newValue, err := ruleToMap(rule)
	if err != nil {
		return
	}

	auditLog := buildAuditLog(rule.ID, string(rule.Type), action, oldValue, newValue, changedBy(ctx))
	_ = s.versioningRepo.CreateAuditLog(ctx, auditLog)
}

func (s *service) publishRuleEvent(ctx context.Context, action string, rule *rules.Rule) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, action, rule, changedBy(ctx)); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish rule change event",
			"error", err,
			"rule_id", rule.ID,
			"action", action,
		)
	}
}

func buildAuditLog(ruleID, ruleType, action string, oldValue, newValue map[string]interface{}, changedBy string) *AuditLog {
	return &AuditLog{
		RuleID:    &ruleID,
		RuleType:  ruleType,
		Action:    action,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedBy: changedBy,
	}
}

func ruleToMap(rule *rules.Rule) (map[string]interface{}, error) {
	data, err := json.Marshal(rule)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func getEnabledValue(reqEnabled *bool) bool {
	if reqEnabled == nil {
		return true
	}
	return *reqEnabled
}
