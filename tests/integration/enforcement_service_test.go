package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bindery/internal/enforcement"
	"bindery/internal/rules"
	"bindery/internal/usage"
)

// Full decision path: rules in postgres, counters in redis.
func setupEnforcement(t *testing.T) (enforcement.Service, rules.Repository, *enforcement.Cache, usage.Store) {
	t.Helper()

	infra := SetupTestInfraWithOptions(t, true, false, true)

	repo := rules.NewPostgresRepository(infra.PostgresDB)
	store := usage.NewRedisStore(infra.RedisClient)
	cache := enforcement.NewCache(repo, time.Minute, createTestLogger())

	svc := enforcement.NewService(cache, store, createTestLogger())
	return svc, repo, cache, store
}

func TestEnforcement_RateLimitExhaustion(t *testing.T) {
	svc, repo, cache, _ := setupEnforcement(t)
	ctx := context.Background()

	rule := createRateLimitRule("api_limit", 3, rules.WindowHour, "api_calls")
	require.NoError(t, repo.Create(ctx, rule))
	require.NoError(t, cache.Load(ctx))

	caller := enforcement.Caller{UserID: "u1", Authenticated: true}

	for i := 0; i < 3; i++ {
		result := svc.CheckAction(ctx, "api_call", caller)
		require.True(t, result.Allowed, "call %d within limit", i+1)
		svc.TrackAction(ctx, "api_call", caller, 1)
	}

	result := svc.CheckAction(ctx, "api_call", caller)
	assert.False(t, result.Allowed)
	assert.Equal(t, rule.ID, result.RuleID)
	require.NotNil(t, result.Remaining)
	assert.Equal(t, int64(0), *result.Remaining)
	require.NotNil(t, result.ResetTime)
}

func TestEnforcement_CheckNeverConsumes(t *testing.T) {
	svc, repo, cache, store := setupEnforcement(t)
	ctx := context.Background()

	rule := createRateLimitRule("api_limit", 5, rules.WindowHour, "api_calls")
	require.NoError(t, repo.Create(ctx, rule))
	require.NoError(t, cache.Load(ctx))

	caller := enforcement.Caller{UserID: "u1", Authenticated: true}

	for i := 0; i < 20; i++ {
		result := svc.CheckAction(ctx, "api_call", caller)
		assert.True(t, result.Allowed)
	}

	record, err := store.Get(ctx, usage.Key{UserID: "u1", RuleID: rule.ID, Resource: "api_calls"})
	require.NoError(t, err)
	assert.Nil(t, record, "checks alone never create a counter")
}

func TestEnforcement_RuleChangeReload(t *testing.T) {
	svc, repo, cache, _ := setupEnforcement(t)
	ctx := context.Background()

	caller := enforcement.Caller{UserID: "u1", Authenticated: true}

	// No rule yet: unmapped-to-nothing actions pass through.
	result := svc.CheckAction(ctx, "api_call", caller)
	assert.True(t, result.Allowed)

	rule := createRateLimitRule("api_limit", 1, rules.WindowHour, "api_calls")
	require.NoError(t, repo.Create(ctx, rule))

	// The new rule takes effect only once the catalog reloads.
	require.NoError(t, cache.Load(ctx))
	svc.TrackAction(ctx, "api_call", caller, 1)

	result = svc.CheckAction(ctx, "api_call", caller)
	assert.False(t, result.Allowed)
}
