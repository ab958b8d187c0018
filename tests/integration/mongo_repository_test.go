package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bindery/internal/rules"
	pkgerrors "bindery/pkg/errors"
	"bindery/pkg/migrations"
)

func setupMongoRepo(t *testing.T) rules.Repository {
	t.Helper()

	infra := SetupTestInfraWithOptions(t, false, true, false)
	require.NoError(t, migrations.EnsureRuleIndexes(context.Background(), infra.MongoDB))

	return rules.NewMongoRepository(infra.MongoDB)
}

func TestMongoRepository_CreateAndGet(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	rule := createRateLimitRule("mongo_api_limit", 100, rules.WindowHour, "api_calls")

	require.NoError(t, repo.Create(ctx, rule))
	assert.NotEmpty(t, rule.ID)

	retrieved, err := repo.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, retrieved.Name)
	assert.Equal(t, rules.TypeRateLimit, retrieved.Type)

	cfg, ok := retrieved.Config.(*rules.RateLimitConfig)
	require.True(t, ok)
	assert.Equal(t, 100, cfg.Limit)
	assert.Equal(t, rules.WindowHour, cfg.Window)
}

func TestMongoRepository_DuplicateName(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, createRateLimitRule("mongo_dup", 100, rules.WindowHour, "api_calls")))

	err := repo.Create(ctx, createRateLimitRule("mongo_dup", 50, rules.WindowDay, "direct_messages"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestMongoRepository_ListEnabled(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	enabled := createFeatureLimitRule("mongo_collections_cap", "collections", 10)
	disabled := createFeatureLimitRule("mongo_cards_cap", "cards_per_collection", 500)
	disabled.Enabled = false

	require.NoError(t, repo.Create(ctx, enabled))
	require.NoError(t, repo.Create(ctx, disabled))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "mongo_collections_cap", active[0].Name)
}

func TestMongoRepository_Update(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	rule := createRateLimitRule("mongo_mutable", 100, rules.WindowHour, "api_calls")
	require.NoError(t, repo.Create(ctx, rule))

	rule.Enabled = false
	rule.Config = &rules.RateLimitConfig{Limit: 10, Window: rules.WindowDay, Resource: "api_calls"}
	require.NoError(t, repo.Update(ctx, rule))

	retrieved, err := repo.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, retrieved.Enabled)
	assert.Equal(t, 10, retrieved.Config.(*rules.RateLimitConfig).Limit)
}

func TestMongoRepository_Delete(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	rule := createRateLimitRule("mongo_doomed", 100, rules.WindowHour, "api_calls")
	require.NoError(t, repo.Create(ctx, rule))

	require.NoError(t, repo.Delete(ctx, rule.ID))

	_, err := repo.Get(ctx, rule.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	err = repo.Delete(ctx, rule.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
}
