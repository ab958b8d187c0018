package rules

import (
	"fmt"
	"time"

	pkgerrors "bindery/pkg/errors"
)

const maxNameLength = 255

var validScopes = map[string]bool{
	ScopeUser:   true,
	ScopeGlobal: true,
}

var validRecurring = map[string]bool{
	RecurringNone:    true,
	RecurringDaily:   true,
	RecurringWeekly:  true,
	RecurringMonthly: true,
}

var validScheduleActions = map[string]bool{
	ScheduleActionDisable:  true,
	ScheduleActionEnable:   true,
	ScheduleActionRestrict: true,
}

func invalid(field, format string, args ...interface{}) error {
	return pkgerrors.ErrInvalidRule.
		WithDetail("field", field).
		WithDetail("message", fmt.Sprintf(format, args...))
}

// Validate checks the invariant part of a rule and then its config.
// Every rejection carries the offending field in the error details.
func Validate(r *Rule) error {
	if r == nil {
		return invalid("rule", "rule is required")
	}
	if r.Name == "" {
		return invalid("name", "name is required")
	}
	if len(r.Name) > maxNameLength {
		return invalid("name", "name exceeds %d characters", maxNameLength)
	}
	if !r.Type.Valid() {
		return invalid("type", "unknown rule type %q", r.Type)
	}
	if r.CreatedBy == "" {
		return invalid("created_by", "created_by is required")
	}
	if r.Config == nil {
		return invalid("config", "config is required")
	}
	if r.Config.Kind() != r.Type {
		return invalid("config", "config shape %q does not match rule type %q", r.Config.Kind(), r.Type)
	}
	return r.Config.Validate()
}

func (c *RateLimitConfig) Validate() error {
	if c.Limit <= 0 {
		return invalid("config.limit", "limit must be positive, got %d", c.Limit)
	}
	if !c.Window.Valid() {
		return invalid("config.window", "unknown window %q", c.Window)
	}
	if c.Resource == "" {
		return invalid("config.resource", "resource is required")
	}
	return nil
}

func (c *FeatureLimitConfig) Validate() error {
	if c.Feature == "" {
		return invalid("config.feature", "feature is required")
	}
	// A zero limit is a legitimate policy: the feature is shut off entirely.
	if c.Limit < 0 {
		return invalid("config.limit", "limit must not be negative, got %d", c.Limit)
	}
	if c.Scope == "" {
		c.Scope = ScopeUser
	}
	if !validScopes[c.Scope] {
		return invalid("config.scope", "scope must be one of user, global; got %q", c.Scope)
	}
	return nil
}

func (c *AccessControlConfig) Validate() error {
	if c.Feature == "" {
		return invalid("config.feature", "feature is required")
	}
	for _, role := range c.AllowedRoles {
		if role == "" {
			return invalid("config.allowed_roles", "allowed_roles entries must be non-empty")
		}
	}
	for _, perm := range c.RequiredPermissions {
		if perm == "" {
			return invalid("config.required_permissions", "required_permissions entries must be non-empty")
		}
	}
	return nil
}

func (c *ContentLimitConfig) Validate() error {
	if c.ContentType == "" {
		return invalid("config.content_type", "content_type is required")
	}
	if c.MaxSize < 0 {
		return invalid("config.max_size", "max_size must not be negative, got %d", c.MaxSize)
	}
	if c.MaxCount < 0 {
		return invalid("config.max_count", "max_count must not be negative, got %d", c.MaxCount)
	}
	if c.MaxSize == 0 && c.MaxCount == 0 && len(c.AllowedTypes) == 0 {
		return invalid("config", "content limit must constrain at least one of max_size, max_count, allowed_types")
	}
	return nil
}

func (c *TimeBasedConfig) Validate() error {
	if c.Feature == "" {
		return invalid("config.feature", "feature is required")
	}
	if !validScheduleActions[c.Action] {
		return invalid("config.action", "action must be one of disable, enable, restrict; got %q", c.Action)
	}
	if c.Schedule.StartTime.IsZero() {
		return invalid("config.schedule.start_time", "start_time is required")
	}
	if c.Schedule.EndTime.IsZero() {
		return invalid("config.schedule.end_time", "end_time is required")
	}
	if c.Schedule.Recurring != "" && !validRecurring[c.Schedule.Recurring] {
		return invalid("config.schedule.recurring", "recurring must be one of none, daily, weekly, monthly; got %q", c.Schedule.Recurring)
	}
	recurring := c.Schedule.Recurring
	if (recurring == "" || recurring == RecurringNone) && !c.Schedule.EndTime.After(c.Schedule.StartTime) {
		return invalid("config.schedule", "end_time must be after start_time for a one-off schedule")
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return invalid("config.schedule.timezone", "unknown timezone %q", c.Schedule.Timezone)
		}
	}
	return nil
}
