package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bindery/internal/rules"
	pkgerrors "bindery/pkg/errors"
)

func TestRulesRepository_Create(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	ctx := context.Background()

	rule := createRateLimitRule("api_limit", 100, rules.WindowHour, "api_calls")

	err := repo.Create(ctx, rule)
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())
	assert.False(t, rule.UpdatedAt.IsZero())
}

func TestRulesRepository_Get(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	ctx := context.Background()

	rule := createRateLimitRule("api_limit", 100, rules.WindowHour, "api_calls")
	require.NoError(t, repo.Create(ctx, rule))

	retrieved, err := repo.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, retrieved.ID)
	assert.Equal(t, rule.Name, retrieved.Name)
	assert.Equal(t, rules.TypeRateLimit, retrieved.Type)
	assert.True(t, retrieved.Enabled)
	assert.Equal(t, "integration-test", retrieved.CreatedBy)

	cfg, ok := retrieved.Config.(*rules.RateLimitConfig)
	require.True(t, ok, "config survives the JSONB round trip as its typed form")
	assert.Equal(t, 100, cfg.Limit)
	assert.Equal(t, rules.WindowHour, cfg.Window)
	assert.Equal(t, "api_calls", cfg.Resource)
}

func TestRulesRepository_Get_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	ctx := context.Background()

	_, err := repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRulesRepository_Create_DuplicateName(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, createRateLimitRule("dup", 100, rules.WindowHour, "api_calls")))

	err := repo.Create(ctx, createRateLimitRule("dup", 50, rules.WindowDay, "direct_messages"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestRulesRepository_ListEnabled(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	ctx := context.Background()

	enabled := createFeatureLimitRule("collections_cap", "collections", 10)
	disabled := createFeatureLimitRule("cards_cap", "cards_per_collection", 500)
	disabled.Enabled = false

	require.NoError(t, repo.Create(ctx, enabled))
	time.Sleep(timestampDelay)
	require.NoError(t, repo.Create(ctx, disabled))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "collections_cap", active[0].Name)
}

func TestRulesRepository_Update(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	ctx := context.Background()

	rule := createRateLimitRule("mutable", 100, rules.WindowHour, "api_calls")
	require.NoError(t, repo.Create(ctx, rule))

	originalUpdatedAt := rule.UpdatedAt

	time.Sleep(timestampDelay)
	rule.Description = "tightened"
	rule.Enabled = false
	rule.Config = &rules.RateLimitConfig{Limit: 20, Window: rules.WindowDay, Resource: "api_calls"}

	require.NoError(t, repo.Update(ctx, rule))

	retrieved, err := repo.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "tightened", retrieved.Description)
	assert.False(t, retrieved.Enabled)
	assert.Equal(t, 20, retrieved.Config.(*rules.RateLimitConfig).Limit)
	assert.True(t, retrieved.UpdatedAt.After(originalUpdatedAt))
}

func TestRulesRepository_Update_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	ctx := context.Background()

	ghost := createRateLimitRule("ghost", 1, rules.WindowHour, "api_calls")
	ghost.ID = "00000000-0000-0000-0000-000000000000"

	err := repo.Update(ctx, ghost)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRulesRepository_Delete(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	ctx := context.Background()

	rule := createRateLimitRule("doomed", 100, rules.WindowHour, "api_calls")
	require.NoError(t, repo.Create(ctx, rule))

	require.NoError(t, repo.Delete(ctx, rule.ID))

	_, err := repo.Get(ctx, rule.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	err = repo.Delete(ctx, rule.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
}
