package enforcement

import (
	"fmt"
	"time"

	"bindery/internal/rules"
	"bindery/internal/usage"
)

// evaluateRule dispatches to the evaluator for the rule's config type.
// Evaluators are pure: same inputs, same decision.
func evaluateRule(rule rules.Rule, caller Caller, record *usage.Record, now time.Time) Result {
	var result Result

	switch cfg := rule.Config.(type) {
	case *rules.RateLimitConfig:
		result = evaluateRateLimit(cfg, record, now)
	case *rules.FeatureLimitConfig:
		result = evaluateFeatureLimit(cfg, caller.CurrentCount)
	case *rules.AccessControlConfig:
		result = evaluateAccessControl(cfg, caller)
	case *rules.ContentLimitConfig:
		result = evaluateContentLimit(cfg, caller.Content)
	case *rules.TimeBasedConfig:
		result = evaluateTimeBased(cfg, now)
	default:
		result = deny("enforcement error")
	}

	result.RuleID = rule.ID
	result.RuleName = rule.Name
	return result
}

// evaluateRateLimit compares the live counter against the configured limit.
// A missing or expired counter reads as zero consumption.
func evaluateRateLimit(cfg *rules.RateLimitConfig, record *usage.Record, now time.Time) Result {
	limit := int64(cfg.Limit)

	if record == nil || record.Expired(now) {
		remaining := limit - 1
		reset := cfg.Window.Next(now)
		result := allow()
		result.Remaining = &remaining
		result.ResetTime = &reset
		return result
	}

	allowed := record.Count < limit
	remaining := limit - record.Count
	if allowed {
		remaining--
	}
	if remaining < 0 {
		remaining = 0
	}
	reset := record.ResetTime

	result := Result{Allowed: allowed, Remaining: &remaining, ResetTime: &reset}
	if !allowed {
		result.Reason = fmt.Sprintf("rate limit exceeded: %d per %s", cfg.Limit, cfg.Window)
	}
	return result
}

// evaluateFeatureLimit is a point-in-time check against the cardinality the
// caller reports; the engine never counts features itself.
func evaluateFeatureLimit(cfg *rules.FeatureLimitConfig, currentCount int64) Result {
	if currentCount < int64(cfg.Limit) {
		return allow()
	}
	return deny(fmt.Sprintf("%s limit reached: maximum %d allowed", cfg.Feature, cfg.Limit))
}

func evaluateAccessControl(cfg *rules.AccessControlConfig, caller Caller) Result {
	for _, blocked := range cfg.BlockedUsers {
		if caller.UserID == blocked {
			return deny(fmt.Sprintf("access to %s is blocked for this account", cfg.Feature))
		}
	}

	if len(cfg.AllowedRoles) > 0 {
		permitted := false
		for _, role := range cfg.AllowedRoles {
			if caller.Role == role {
				permitted = true
				break
			}
		}
		if !permitted {
			return deny(fmt.Sprintf("insufficient role for %s", cfg.Feature))
		}
	}

	for _, perm := range cfg.RequiredPermissions {
		if !caller.hasPermission(perm) {
			return deny(fmt.Sprintf("missing permission %s for %s", perm, cfg.Feature))
		}
	}

	return allow()
}

// evaluateContentLimit checks size, then type, then count; the first
// violated clause wins.
func evaluateContentLimit(cfg *rules.ContentLimitConfig, content *ContentInfo) Result {
	if content == nil {
		return allow()
	}

	if cfg.MaxSize > 0 && content.Size > cfg.MaxSize {
		return deny(fmt.Sprintf("%s exceeds maximum size of %d bytes", cfg.ContentType, cfg.MaxSize))
	}

	if len(cfg.AllowedTypes) > 0 {
		permitted := false
		for _, t := range cfg.AllowedTypes {
			if content.Type == t {
				permitted = true
				break
			}
		}
		if !permitted {
			return deny(fmt.Sprintf("%s type %q is not allowed", cfg.ContentType, content.Type))
		}
	}

	if cfg.MaxCount > 0 && content.Count >= cfg.MaxCount {
		return deny(fmt.Sprintf("%s limit reached: maximum %d allowed", cfg.ContentType, cfg.MaxCount))
	}

	return allow()
}

// evaluateTimeBased decides from the schedule alone. The weekly recurrence
// compares the day range and the hour range independently, not as one
// contiguous calendar window; that matching is deliberate.
func evaluateTimeBased(cfg *rules.TimeBasedConfig, now time.Time) Result {
	loc := time.UTC
	if cfg.Schedule.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Schedule.Timezone); err == nil {
			loc = l
		}
	}

	localNow := now.In(loc)
	start := cfg.Schedule.StartTime.In(loc)
	end := cfg.Schedule.EndTime.In(loc)

	var inSchedule bool
	switch cfg.Schedule.Recurring {
	case rules.RecurringDaily, rules.RecurringMonthly:
		inSchedule = hourInRange(localNow.Hour(), start.Hour(), end.Hour())
	case rules.RecurringWeekly:
		dayIn := dayInRange(int(localNow.Weekday()), int(start.Weekday()), int(end.Weekday()))
		hourIn := hourInRange(localNow.Hour(), start.Hour(), end.Hour())
		inSchedule = dayIn && hourIn
	default:
		inSchedule = !localNow.Before(start) && !localNow.After(end)
	}

	allowed := !inSchedule
	if cfg.Action == rules.ScheduleActionEnable {
		allowed = inSchedule
	}
	if allowed {
		return allow()
	}

	if cfg.Action == rules.ScheduleActionEnable {
		return deny(fmt.Sprintf("%s is only available during the scheduled window", cfg.Feature))
	}
	return deny(fmt.Sprintf("%s is unavailable during the scheduled window", cfg.Feature))
}

func hourInRange(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	// Range wraps past midnight.
	return hour >= start || hour <= end
}

func dayInRange(day, start, end int) bool {
	if start <= end {
		return day >= start && day <= end
	}
	return day >= start || day <= end
}
