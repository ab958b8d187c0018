package management

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bindery/internal/constants"
	"bindery/internal/logger"
	"bindery/internal/rules"
	"bindery/internal/usage"
	pkgerrors "bindery/pkg/errors"
)

type fakeRepo struct {
	byID map[string]*rules.Rule
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[string]*rules.Rule)}
}

func (r *fakeRepo) Create(_ context.Context, rule *rules.Rule) error {
	for _, existing := range r.byID {
		if existing.Name == rule.Name {
			return pkgerrors.ErrConflict.WithDetail("field", "name")
		}
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	copied := *rule
	r.byID[rule.ID] = &copied
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*rules.Rule, error) {
	rule, ok := r.byID[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *rule
	return &copied, nil
}

func (r *fakeRepo) List(_ context.Context) ([]rules.Rule, error) {
	listed := make([]rules.Rule, 0, len(r.byID))
	for _, rule := range r.byID {
		listed = append(listed, *rule)
	}
	return listed, nil
}

func (r *fakeRepo) ListEnabled(_ context.Context) ([]rules.Rule, error) {
	var listed []rules.Rule
	for _, rule := range r.byID {
		if rule.Enabled {
			listed = append(listed, *rule)
		}
	}
	return listed, nil
}

func (r *fakeRepo) Update(_ context.Context, rule *rules.Rule) error {
	if _, ok := r.byID[rule.ID]; !ok {
		return pkgerrors.ErrNotFound
	}
	rule.UpdatedAt = time.Now()
	copied := *rule
	r.byID[rule.ID] = &copied
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

type fakeVersioning struct {
	versions map[string][]RuleVersion
	audits   []AuditLog
}

func newFakeVersioning() *fakeVersioning {
	return &fakeVersioning{versions: make(map[string][]RuleVersion)}
}

func (v *fakeVersioning) CreateVersion(_ context.Context, version *RuleVersion) error {
	v.versions[version.RuleID] = append(v.versions[version.RuleID], *version)
	return nil
}

func (v *fakeVersioning) GetVersions(_ context.Context, ruleID string) ([]RuleVersion, error) {
	return v.versions[ruleID], nil
}

func (v *fakeVersioning) GetVersion(_ context.Context, ruleID string, version int) (*RuleVersion, error) {
	for _, candidate := range v.versions[ruleID] {
		if candidate.Version == version {
			return &candidate, nil
		}
	}
	return nil, nil
}

func (v *fakeVersioning) CreateAuditLog(_ context.Context, log *AuditLog) error {
	v.audits = append(v.audits, *log)
	return nil
}

func (v *fakeVersioning) GetAuditLogs(_ context.Context, ruleID *string, ruleType string, limit int) ([]AuditLog, error) {
	var logs []AuditLog
	for _, log := range v.audits {
		if ruleID != nil && (log.RuleID == nil || *log.RuleID != *ruleID) {
			continue
		}
		if ruleType != "" && log.RuleType != ruleType {
			continue
		}
		logs = append(logs, log)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (v *fakeVersioning) GetNextVersion(_ context.Context, ruleID string) (int, error) {
	return len(v.versions[ruleID]) + 1, nil
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), Actor{UserID: "owner-1", Role: constants.RoleOwner})
}

func memberCtx() context.Context {
	return WithActor(context.Background(), Actor{UserID: "member-1", Role: constants.RoleUser})
}

func newTestService(t *testing.T) (Service, *fakeRepo, *usage.MemoryStore, *fakeVersioning) {
	t.Helper()
	repo := newFakeRepo()
	store := usage.NewMemoryStore()
	versioning := newFakeVersioning()
	svc := NewService(repo, store, logger.NopLogger(), WithVersioning(versioning))
	return svc, repo, store, versioning
}

func rateLimitCreateRequest(name string) CreateRuleRequest {
	return CreateRuleRequest{
		Name: name,
		Type: string(rules.TypeRateLimit),
		Config: json.RawMessage(`{
			"limit": 100,
			"window": "hour",
			"resource": "api_calls"
		}`),
	}
}

func TestCreateRule(t *testing.T) {
	svc, _, _, versioning := newTestService(t)

	rule, err := svc.CreateRule(ownerCtx(), rateLimitCreateRequest("api-rate-limit"))
	require.NoError(t, err)

	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "api-rate-limit", rule.Name)
	assert.True(t, rule.Enabled, "rules default to enabled")
	assert.Equal(t, "owner-1", rule.CreatedBy)

	cfg, ok := rule.Config.(*rules.RateLimitConfig)
	require.True(t, ok)
	assert.Equal(t, 100, cfg.Limit)

	require.Len(t, versioning.versions[rule.ID], 1)
	assert.Equal(t, 1, versioning.versions[rule.ID][0].Version)
	require.Len(t, versioning.audits, 1)
	assert.Equal(t, "create", versioning.audits[0].Action)
}

func TestCreateRuleRequiresOwner(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"regular member", memberCtx()},
		{"no actor", context.Background()},
		{"admin is not owner", WithActor(context.Background(), Actor{UserID: "a", Role: constants.RoleAdmin})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRule(tt.ctx, rateLimitCreateRequest("blocked"))
			assert.True(t, pkgerrors.IsPermission(err))
		})
	}

	assert.Empty(t, repo.byID, "denied creates must not persist anything")
}

func TestCreateRuleDuplicateName(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.CreateRule(ownerCtx(), rateLimitCreateRequest("dup"))
	require.NoError(t, err)

	_, err = svc.CreateRule(ownerCtx(), rateLimitCreateRequest("dup"))
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestCreateRuleInvalidConfig(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	tests := []struct {
		name string
		req  CreateRuleRequest
	}{
		{
			name: "unknown type",
			req: CreateRuleRequest{
				Name:   "bad-type",
				Type:   "geo_fence",
				Config: json.RawMessage(`{}`),
			},
		},
		{
			name: "zero limit",
			req: CreateRuleRequest{
				Name:   "zero-limit",
				Type:   string(rules.TypeRateLimit),
				Config: json.RawMessage(`{"limit": 0, "window": "hour", "resource": "api_calls"}`),
			},
		},
		{
			name: "bad window",
			req: CreateRuleRequest{
				Name:   "bad-window",
				Type:   string(rules.TypeRateLimit),
				Config: json.RawMessage(`{"limit": 5, "window": "fortnight", "resource": "api_calls"}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRule(ownerCtx(), tt.req)
			assert.True(t, pkgerrors.IsInvalidRule(err), "got %v", err)
		})
	}
}

func TestCreateRuleFromTemplate(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	rule, err := svc.CreateRuleFromTemplate(ownerCtx(), CreateFromTemplateRequest{
		Template: "collection_limit",
		Overrides: map[string]interface{}{
			"name": "custom-collections-cap",
			"config": map[string]interface{}{
				"limit": 25,
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "custom-collections-cap", rule.Name)
	assert.Equal(t, "owner-1", rule.CreatedBy)

	cfg, ok := rule.Config.(*rules.FeatureLimitConfig)
	require.True(t, ok)
	assert.Equal(t, 25, cfg.Limit)
}

func TestCreateRuleFromTemplateUnknown(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.CreateRuleFromTemplate(ownerCtx(), CreateFromTemplateRequest{Template: "nope"})
	assert.True(t, pkgerrors.IsInvalidRule(err))
}

func TestUpdateRulePartial(t *testing.T) {
	svc, _, _, versioning := newTestService(t)

	created, err := svc.CreateRule(ownerCtx(), rateLimitCreateRequest("partial"))
	require.NoError(t, err)

	desc := "tightened for launch week"
	updated, err := svc.UpdateRule(ownerCtx(), created.ID, UpdateRuleRequest{
		Description: &desc,
		Config:      json.RawMessage(`{"limit": 50, "window": "hour", "resource": "api_calls"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "partial", updated.Name, "omitted fields keep their values")
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, 50, updated.Config.(*rules.RateLimitConfig).Limit)

	assert.Len(t, versioning.versions[created.ID], 2)
}

func TestUpdateRuleNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	name := "ghost"
	_, err := svc.UpdateRule(ownerCtx(), uuid.New().String(), UpdateRuleRequest{Name: &name})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDeleteRuleRemovesUsage(t *testing.T) {
	svc, repo, store, versioning := newTestService(t)

	created, err := svc.CreateRule(ownerCtx(), rateLimitCreateRequest("doomed"))
	require.NoError(t, err)

	key := usage.Key{UserID: "user-1", RuleID: created.ID, Resource: "api_calls"}
	_, err = store.Increment(context.Background(), key, 3, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRule(ownerCtx(), created.ID))

	assert.Empty(t, repo.byID)
	record, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, record, "usage counters go with the rule")

	last := versioning.audits[len(versioning.audits)-1]
	assert.Equal(t, "delete", last.Action)
}

func TestSetRuleEnabled(t *testing.T) {
	svc, _, _, versioning := newTestService(t)

	created, err := svc.CreateRule(ownerCtx(), rateLimitCreateRequest("toggled"))
	require.NoError(t, err)

	disabled, err := svc.SetRuleEnabled(ownerCtx(), created.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	last := versioning.audits[len(versioning.audits)-1]
	assert.Equal(t, "disable", last.Action)

	// Setting the same state again is a no-op: no new version, no audit entry.
	before := len(versioning.audits)
	again, err := svc.SetRuleEnabled(ownerCtx(), created.ID, false)
	require.NoError(t, err)
	assert.False(t, again.Enabled)
	assert.Len(t, versioning.audits, before)
}

func TestGetRuleUsage(t *testing.T) {
	svc, _, store, _ := newTestService(t)

	created, err := svc.CreateRule(ownerCtx(), rateLimitCreateRequest("measured"))
	require.NoError(t, err)

	reset := time.Now().Add(time.Hour)
	for _, user := range []string{"u1", "u2", "u2"} {
		_, err := store.Increment(context.Background(), usage.Key{
			UserID: user, RuleID: created.ID, Resource: "api_calls",
		}, 1, reset)
		require.NoError(t, err)
	}

	stats, err := svc.GetRuleUsage(ownerCtx(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, stats.RuleID)
	assert.Equal(t, int64(2), stats.DistinctUsers)
	assert.Equal(t, int64(3), stats.TotalCount)
}

func TestGetRuleUsageNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.GetRuleUsage(ownerCtx(), uuid.New().String())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestListTemplates(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	keys := svc.ListTemplates(context.Background())
	assert.NotEmpty(t, keys)
	assert.Contains(t, keys, "collection_limit")
}

func TestGetAuditLogsFilters(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	first, err := svc.CreateRule(ownerCtx(), rateLimitCreateRequest("audited-a"))
	require.NoError(t, err)
	_, err = svc.CreateRule(ownerCtx(), rateLimitCreateRequest("audited-b"))
	require.NoError(t, err)

	all, err := svc.GetAuditLogs(ownerCtx(), nil, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := svc.GetAuditLogs(ownerCtx(), &first.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, first.ID, *scoped[0].RuleID)
}

func TestReadsRequireOwner(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.ListRules(memberCtx())
	assert.True(t, pkgerrors.IsPermission(err))

	_, err = svc.GetRule(memberCtx(), "any")
	assert.True(t, pkgerrors.IsPermission(err))

	_, err = svc.GetAuditLogs(memberCtx(), nil, "", 10)
	assert.True(t, pkgerrors.IsPermission(err))
}
