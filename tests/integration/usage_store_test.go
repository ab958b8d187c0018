package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bindery/internal/usage"
)

func TestRedisStore_IncrementCreatesCounter(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := usage.NewRedisStore(infra.RedisClient)
	ctx := context.Background()

	key := usage.Key{UserID: "u1", RuleID: "r1", Resource: "api_calls"}
	reset := time.Now().Add(time.Hour)

	record, err := store.Increment(ctx, key, 1, reset)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Count)
	assert.Equal(t, reset.Unix(), record.ResetTime.Unix())

	retrieved, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, int64(1), retrieved.Count)
	assert.Equal(t, "u1", retrieved.UserID)
}

func TestRedisStore_ResetTimeFixedAtCreation(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := usage.NewRedisStore(infra.RedisClient)
	ctx := context.Background()

	key := usage.Key{UserID: "u1", RuleID: "r1", Resource: "api_calls"}
	firstReset := time.Now().Add(time.Hour)

	_, err := store.Increment(ctx, key, 1, firstReset)
	require.NoError(t, err)

	// A later increment proposes a different reset time; the stored one wins.
	laterReset := time.Now().Add(2 * time.Hour)
	record, err := store.Increment(ctx, key, 1, laterReset)
	require.NoError(t, err)

	assert.Equal(t, int64(2), record.Count)
	assert.Equal(t, firstReset.Unix(), record.ResetTime.Unix())
}

func TestRedisStore_ExpiredCounterRestarts(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := usage.NewRedisStore(infra.RedisClient)
	ctx := context.Background()

	key := usage.Key{UserID: "u1", RuleID: "r1", Resource: "api_calls"}

	_, err := store.Increment(ctx, key, 5, time.Now().Add(time.Second))
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	retrieved, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, retrieved, "expired counter reads as absent")

	newReset := time.Now().Add(time.Hour)
	record, err := store.Increment(ctx, key, 1, newReset)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Count, "expired counter restarts from the delta")
	assert.Equal(t, newReset.Unix(), record.ResetTime.Unix())
}

func TestRedisStore_GetMissing(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := usage.NewRedisStore(infra.RedisClient)

	record, err := store.Get(context.Background(), usage.Key{UserID: "nobody", RuleID: "r1", Resource: "api_calls"})
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRedisStore_ConcurrentIncrements(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := usage.NewRedisStore(infra.RedisClient)
	ctx := context.Background()

	key := usage.Key{UserID: "u1", RuleID: "r1", Resource: "api_calls"}
	reset := time.Now().Add(time.Hour)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Increment(ctx, key, 1, reset); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent increment failed: %v", err)
	}

	record, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(workers), record.Count)
	assert.Equal(t, reset.Unix(), record.ResetTime.Unix())
}

func TestRedisStore_DeleteByRule(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := usage.NewRedisStore(infra.RedisClient)
	ctx := context.Background()

	reset := time.Now().Add(time.Hour)
	for _, user := range []string{"u1", "u2", "u3"} {
		_, err := store.Increment(ctx, usage.Key{UserID: user, RuleID: "r1", Resource: "api_calls"}, 1, reset)
		require.NoError(t, err)
	}
	_, err := store.Increment(ctx, usage.Key{UserID: "u1", RuleID: "r2", Resource: "api_calls"}, 1, reset)
	require.NoError(t, err)

	deleted, err := store.DeleteByRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	record, err := store.Get(ctx, usage.Key{UserID: "u1", RuleID: "r1", Resource: "api_calls"})
	require.NoError(t, err)
	assert.Nil(t, record)

	// Counters of other rules are untouched.
	other, err := store.Get(ctx, usage.Key{UserID: "u1", RuleID: "r2", Resource: "api_calls"})
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Equal(t, int64(1), other.Count)
}

func TestRedisStore_Stats(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := usage.NewRedisStore(infra.RedisClient)
	ctx := context.Background()

	reset := time.Now().Add(time.Hour)
	_, err := store.Increment(ctx, usage.Key{UserID: "u1", RuleID: "r1", Resource: "api_calls"}, 4, reset)
	require.NoError(t, err)
	_, err = store.Increment(ctx, usage.Key{UserID: "u2", RuleID: "r1", Resource: "api_calls"}, 6, reset)
	require.NoError(t, err)

	stats, err := store.Stats(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", stats.RuleID)
	assert.Equal(t, int64(2), stats.DistinctUsers)
	assert.Equal(t, int64(10), stats.TotalCount)
	assert.False(t, stats.LastActivity.IsZero())
}

func TestRedisStore_SweepExpired(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := usage.NewRedisStore(infra.RedisClient)
	ctx := context.Background()

	_, err := store.Increment(ctx, usage.Key{UserID: "u1", RuleID: "r1", Resource: "api_calls"}, 1, time.Now().Add(time.Second))
	require.NoError(t, err)
	_, err = store.Increment(ctx, usage.Key{UserID: "u2", RuleID: "r1", Resource: "api_calls"}, 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	removed, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	stats, err := store.Stats(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DistinctUsers)
}
