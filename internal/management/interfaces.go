package management

import (
	"context"

	"bindery/internal/rules"
	"bindery/internal/usage"
)

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (*rules.Rule, error)
	CreateRuleFromTemplate(ctx context.Context, req CreateFromTemplateRequest) (*rules.Rule, error)
	ListRules(ctx context.Context) ([]rules.Rule, error)
	GetRule(ctx context.Context, id string) (*rules.Rule, error)
	UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*rules.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	SetRuleEnabled(ctx context.Context, id string, enabled bool) (*rules.Rule, error)
	GetRuleUsage(ctx context.Context, id string) (*usage.Stats, error)
	ListTemplates(ctx context.Context) []string

	GetRuleVersions(ctx context.Context, ruleID string) ([]RuleVersion, error)
	GetAuditLogs(ctx context.Context, ruleID *string, ruleType string, limit int) ([]AuditLog, error)
}
