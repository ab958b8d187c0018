package enforcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bindery/internal/logger"
	"bindery/internal/rules"
	"bindery/internal/usage"
)

type staticCatalog struct {
	rules []rules.Rule
}

func (c *staticCatalog) RulesFor(ruleType rules.Type, resource string) []rules.Rule {
	var matched []rules.Rule
	for _, rule := range c.rules {
		if rule.Type != ruleType || !rule.Enabled {
			continue
		}
		if rules.GovernedResource(rule.Config) != resource {
			continue
		}
		matched = append(matched, rule)
	}
	return matched
}

type failingStore struct {
	usage.Store
	err error
}

func (s *failingStore) Get(context.Context, usage.Key) (*usage.Record, error) {
	return nil, s.err
}

func apiRateRule(limit int) rules.Rule {
	return rules.Rule{
		ID:      "r-rate",
		Name:    "api rate limit",
		Type:    rules.TypeRateLimit,
		Enabled: true,
		Config:  &rules.RateLimitConfig{Limit: limit, Window: rules.WindowHour, Resource: "api_calls"},
	}
}

func authedCaller() Caller {
	return Caller{UserID: "u-1", Role: "user", Authenticated: true}
}

func TestCheckActionRateLimitFlow(t *testing.T) {
	catalog := &staticCatalog{rules: []rules.Rule{apiRateRule(5)}}
	store := usage.NewMemoryStore()
	svc := NewService(catalog, store, logger.NopLogger())
	ctx := context.Background()

	// Fresh user: allowed with limit-1 remaining.
	first := svc.CheckAction(ctx, "api_call", authedCaller())
	assert.True(t, first.Allowed)
	require.NotNil(t, first.Remaining)
	assert.Equal(t, int64(4), *first.Remaining)

	// Checking never consumes quota.
	again := svc.CheckAction(ctx, "api_call", authedCaller())
	assert.True(t, again.Allowed)
	assert.Equal(t, int64(4), *again.Remaining)

	// Five tracked calls exhaust the window.
	for i := 0; i < 5; i++ {
		svc.TrackAction(ctx, "api_call", authedCaller(), 1)
	}

	denied := svc.CheckAction(ctx, "api_call", authedCaller())
	assert.False(t, denied.Allowed)
	assert.Contains(t, denied.Reason, "5 per hour")
	assert.Equal(t, "r-rate", denied.RuleID)
}

func TestCheckActionFirstDenialShortCircuits(t *testing.T) {
	permissive := rules.Rule{
		ID: "r-a", Name: "loose", Type: rules.TypeFeatureLimit, Enabled: true,
		Config: &rules.FeatureLimitConfig{Feature: "collections", Limit: 100},
	}
	strict := rules.Rule{
		ID: "r-b", Name: "strict", Type: rules.TypeFeatureLimit, Enabled: true,
		Config: &rules.FeatureLimitConfig{Feature: "collections", Limit: 5},
	}
	catalog := &staticCatalog{rules: []rules.Rule{permissive, strict}}
	svc := NewService(catalog, usage.NewMemoryStore(), logger.NopLogger())

	caller := authedCaller()
	caller.CurrentCount = 7

	result := svc.CheckAction(context.Background(), "create_collection", caller)
	assert.False(t, result.Allowed)
	assert.Equal(t, "r-b", result.RuleID)
}

func TestCheckActionNoMatchingRulesAllows(t *testing.T) {
	svc := NewService(&staticCatalog{}, usage.NewMemoryStore(), logger.NopLogger())

	result := svc.CheckAction(context.Background(), "api_call", authedCaller())
	assert.True(t, result.Allowed)
}

func TestCheckActionUnmappedActionAllows(t *testing.T) {
	svc := NewService(&staticCatalog{rules: []rules.Rule{apiRateRule(1)}}, usage.NewMemoryStore(), logger.NopLogger())

	result := svc.CheckAction(context.Background(), "feed_the_cat", authedCaller())
	assert.True(t, result.Allowed)
}

func TestCheckActionStoreFailureFailsClosed(t *testing.T) {
	catalog := &staticCatalog{rules: []rules.Rule{apiRateRule(5)}}
	store := &failingStore{err: errors.New("connection refused")}
	svc := NewService(catalog, store, logger.NopLogger())

	result := svc.CheckAction(context.Background(), "api_call", authedCaller())
	assert.False(t, result.Allowed)
	assert.Equal(t, "enforcement error", result.Reason)
}

func TestCheckActionDisabledRulesNeverConsulted(t *testing.T) {
	disabled := apiRateRule(0)
	disabled.Enabled = false
	catalog := &staticCatalog{rules: []rules.Rule{disabled}}

	// A failing store proves the disabled rule's usage is never read.
	store := &failingStore{err: errors.New("must not be called")}
	svc := NewService(catalog, store, logger.NopLogger())

	result := svc.CheckAction(context.Background(), "api_call", authedCaller())
	assert.True(t, result.Allowed)
}

func TestTrackUsageIncrementsEveryMatchingRule(t *testing.T) {
	ruleA := apiRateRule(100)
	ruleB := apiRateRule(50)
	ruleB.ID = "r-rate-2"
	catalog := &staticCatalog{rules: []rules.Rule{ruleA, ruleB}}
	store := usage.NewMemoryStore()
	svc := NewService(catalog, store, logger.NopLogger())
	ctx := context.Background()

	svc.TrackUsage(ctx, "u-1", rules.TypeRateLimit, "api_calls", 1)

	for _, id := range []string{"r-rate", "r-rate-2"} {
		record, err := store.Get(ctx, usage.Key{UserID: "u-1", RuleID: id, Resource: "api_calls"})
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, int64(1), record.Count)
	}
}

func TestTrackActionUnauthenticatedIsNoOp(t *testing.T) {
	catalog := &staticCatalog{rules: []rules.Rule{apiRateRule(5)}}
	store := usage.NewMemoryStore()
	svc := NewService(catalog, store, logger.NopLogger())
	ctx := context.Background()

	svc.TrackAction(ctx, "api_call", Caller{UserID: "local"}, 1)

	record, err := store.Get(ctx, usage.Key{UserID: "local", RuleID: "r-rate", Resource: "api_calls"})
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestCheckActionResetTimeFixedWhileWindowLive(t *testing.T) {
	catalog := &staticCatalog{rules: []rules.Rule{apiRateRule(5)}}
	store := usage.NewMemoryStore()

	base := time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)
	current := base
	svc := NewService(catalog, store, logger.NopLogger(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	svc.TrackAction(ctx, "api_call", authedCaller(), 1)

	// Later tracking in the same window must not move the reset time.
	current = base.Add(10 * time.Minute)
	svc.TrackAction(ctx, "api_call", authedCaller(), 1)

	record, err := store.Get(ctx, usage.Key{UserID: "u-1", RuleID: "r-rate", Resource: "api_calls"})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(2), record.Count)
	assert.Equal(t, base.Add(time.Hour), record.ResetTime)
}
