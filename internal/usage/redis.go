package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bindery/internal/constants"
)

// incrementScript creates or bumps a counter atomically. The reset time is
// written only when the counter is created (or recreated after expiry);
// later increments never move it.
var incrementScript = redis.NewScript(`
local key = KEYS[1]
local idx = KEYS[2]
local delta = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local reset = tonumber(ARGV[3])
local user = ARGV[4]

local cur = redis.call('HGET', key, 'reset_time')
if (not cur) or (now > tonumber(cur)) then
	redis.call('DEL', key)
	redis.call('HSET', key, 'user_id', user, 'count', delta, 'reset_time', reset, 'updated_at', now)
	redis.call('EXPIREAT', key, reset)
	redis.call('SADD', idx, key)
	return {delta, reset}
end

local count = redis.call('HINCRBY', key, 'count', delta)
redis.call('HSET', key, 'updated_at', now)
return {count, tonumber(cur)}
`)

type RedisStore struct {
	client *redis.Client
	now    nowFunc
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, key.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	record, err := recordFromFields(key, fields)
	if err != nil {
		return nil, err
	}
	if record.Expired(s.now()) {
		return nil, nil
	}
	return record, nil
}

func (s *RedisStore) Increment(ctx context.Context, key Key, delta int64, resetTime time.Time) (*Record, error) {
	now := s.now()

	result, err := incrementScript.Run(ctx, s.client,
		[]string{key.String(), RuleIndexKey(key.RuleID)},
		delta, now.Unix(), resetTime.Unix(), key.UserID,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redis increment failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("redis increment returned unexpected result: %v", result)
	}
	count, ok1 := values[0].(int64)
	reset, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("redis increment returned unexpected result: %v", result)
	}

	return &Record{
		UserID:    key.UserID,
		RuleID:    key.RuleID,
		Resource:  key.Resource,
		Count:     count,
		ResetTime: time.Unix(reset, 0),
		UpdatedAt: now,
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key Key) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key.String())
	pipe.SRem(ctx, RuleIndexKey(key.RuleID), key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis reset failed: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteByRule(ctx context.Context, ruleID string) (int64, error) {
	idx := RuleIndexKey(ruleID)

	members, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis SMEMBERS failed: %w", err)
	}

	var deleted int64
	if len(members) > 0 {
		deleted, err = s.client.Del(ctx, members...).Result()
		if err != nil {
			return 0, fmt.Errorf("redis DEL failed: %w", err)
		}
	}

	if err := s.client.Del(ctx, idx).Err(); err != nil {
		return deleted, fmt.Errorf("redis DEL index failed: %w", err)
	}

	return deleted, nil
}

func (s *RedisStore) Stats(ctx context.Context, ruleID string) (*Stats, error) {
	members, err := s.client.SMembers(ctx, RuleIndexKey(ruleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS failed: %w", err)
	}

	stats := &Stats{RuleID: ruleID}
	users := make(map[string]bool)
	now := s.now()

	for _, member := range members {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		fields, err := s.client.HGetAll(ctx, member).Result()
		if err != nil {
			return nil, fmt.Errorf("redis HGETALL failed: %w", err)
		}
		if len(fields) == 0 {
			continue
		}

		reset, err := strconv.ParseInt(fields["reset_time"], 10, 64)
		if err != nil || now.After(time.Unix(reset, 0)) {
			continue
		}

		count, _ := strconv.ParseInt(fields["count"], 10, 64)
		updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

		users[fields["user_id"]] = true
		stats.TotalCount += count
		if at := time.Unix(updated, 0); at.After(stats.LastActivity) {
			stats.LastActivity = at
		}
	}

	stats.DistinctUsers = int64(len(users))
	return stats, nil
}

// SweepExpired walks the per-rule index sets and removes entries whose
// counters have already been expired by redis. Counters self-clean via
// TTL; this keeps the indexes from growing without bound.
func (s *RedisStore) SweepExpired(ctx context.Context) (int64, error) {
	var removed int64

	iter := s.client.Scan(ctx, 0, constants.UsageRuleKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		idx := iter.Val()

		members, err := s.client.SMembers(ctx, idx).Result()
		if err != nil {
			return removed, fmt.Errorf("redis SMEMBERS failed: %w", err)
		}

		for _, member := range members {
			exists, err := s.client.Exists(ctx, member).Result()
			if err != nil {
				return removed, fmt.Errorf("redis EXISTS failed: %w", err)
			}
			if exists == 0 {
				if err := s.client.SRem(ctx, idx, member).Err(); err != nil {
					return removed, fmt.Errorf("redis SREM failed: %w", err)
				}
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan failed: %w", err)
	}

	return removed, nil
}

func recordFromFields(key Key, fields map[string]string) (*Record, error) {
	count, err := strconv.ParseInt(fields["count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("usage record %s has invalid count: %w", key, err)
	}
	reset, err := strconv.ParseInt(fields["reset_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("usage record %s has invalid reset_time: %w", key, err)
	}
	updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

	return &Record{
		UserID:    key.UserID,
		RuleID:    key.RuleID,
		Resource:  key.Resource,
		Count:     count,
		ResetTime: time.Unix(reset, 0),
		UpdatedAt: time.Unix(updated, 0),
	}, nil
}
