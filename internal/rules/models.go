package rules

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates the shape of a rule's config. The set is closed:
// adding a variant means touching every switch that dispatches on it.
type Type string

const (
	TypeRateLimit     Type = "rate_limit"
	TypeFeatureLimit  Type = "feature_limit"
	TypeAccessControl Type = "access_control"
	TypeContentLimit  Type = "content_limit"
	TypeTimeBased     Type = "time_based"
)

func (t Type) Valid() bool {
	switch t {
	case TypeRateLimit, TypeFeatureLimit, TypeAccessControl, TypeContentLimit, TypeTimeBased:
		return true
	}
	return false
}

// Window is the recurring period a rate-limit counter accumulates over.
type Window string

const (
	WindowHour  Window = "hour"
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

func (w Window) Valid() bool {
	switch w {
	case WindowHour, WindowDay, WindowWeek, WindowMonth:
		return true
	}
	return false
}

// Next returns the boundary at which a counter in this window resets:
// top of the next hour, midnight of the next day, midnight of the next
// Sunday, or midnight of the first of the next month.
func (w Window) Next(now time.Time) time.Time {
	y, m, d := now.Date()
	loc := now.Location()

	switch w {
	case WindowHour:
		return time.Date(y, m, d, now.Hour()+1, 0, 0, 0, loc)
	case WindowDay:
		return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	case WindowWeek:
		days := (7 - int(now.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		return time.Date(y, m, d+days, 0, 0, 0, 0, loc)
	case WindowMonth:
		return time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, now.Hour()+1, 0, 0, 0, loc)
	}
}

// Span returns "one window" from now, used as the reset time of a counter
// created by a first increment.
func (w Window) Span(now time.Time) time.Time {
	switch w {
	case WindowHour:
		return now.Add(time.Hour)
	case WindowDay:
		return now.AddDate(0, 0, 1)
	case WindowWeek:
		return now.AddDate(0, 0, 7)
	case WindowMonth:
		return now.AddDate(0, 1, 0)
	default:
		return now.Add(time.Hour)
	}
}

// Config is the variant part of a Rule. Exactly one concrete type exists
// per rule Type.
type Config interface {
	Kind() Type
	Validate() error
}

type RateLimitConfig struct {
	Limit    int    `json:"limit" bson:"limit"`
	Window   Window `json:"window" bson:"window"`
	Resource string `json:"resource" bson:"resource"`
}

func (c *RateLimitConfig) Kind() Type { return TypeRateLimit }

const (
	ScopeUser   = "user"
	ScopeGlobal = "global"
)

type FeatureLimitConfig struct {
	Feature string `json:"feature" bson:"feature"`
	Limit   int    `json:"limit" bson:"limit"`
	Scope   string `json:"scope" bson:"scope"`
}

func (c *FeatureLimitConfig) Kind() Type { return TypeFeatureLimit }

type AccessControlConfig struct {
	Feature             string   `json:"feature" bson:"feature"`
	AllowedRoles        []string `json:"allowed_roles,omitempty" bson:"allowed_roles,omitempty"`
	RequiredPermissions []string `json:"required_permissions,omitempty" bson:"required_permissions,omitempty"`
	BlockedUsers        []string `json:"blocked_users,omitempty" bson:"blocked_users,omitempty"`
}

func (c *AccessControlConfig) Kind() Type { return TypeAccessControl }

type ContentLimitConfig struct {
	ContentType  string   `json:"content_type" bson:"content_type"`
	MaxSize      int64    `json:"max_size,omitempty" bson:"max_size,omitempty"`
	AllowedTypes []string `json:"allowed_types,omitempty" bson:"allowed_types,omitempty"`
	MaxCount     int      `json:"max_count,omitempty" bson:"max_count,omitempty"`
}

func (c *ContentLimitConfig) Kind() Type { return TypeContentLimit }

type Schedule struct {
	StartTime time.Time `json:"start_time" bson:"start_time"`
	EndTime   time.Time `json:"end_time" bson:"end_time"`
	Timezone  string    `json:"timezone" bson:"timezone"`
	Recurring string    `json:"recurring" bson:"recurring"`
}

const (
	RecurringNone    = "none"
	RecurringDaily   = "daily"
	RecurringWeekly  = "weekly"
	RecurringMonthly = "monthly"
)

const (
	ScheduleActionDisable  = "disable"
	ScheduleActionEnable   = "enable"
	ScheduleActionRestrict = "restrict"
)

type TimeBasedConfig struct {
	Feature  string   `json:"feature" bson:"feature"`
	Schedule Schedule `json:"schedule" bson:"schedule"`
	Action   string   `json:"action" bson:"action"`
}

func (c *TimeBasedConfig) Kind() Type { return TypeTimeBased }

// GovernedResource names the quantity or feature a config applies to.
// The coordinator matches rules to actions through this.
func GovernedResource(c Config) string {
	switch cfg := c.(type) {
	case *RateLimitConfig:
		return cfg.Resource
	case *FeatureLimitConfig:
		return cfg.Feature
	case *AccessControlConfig:
		return cfg.Feature
	case *ContentLimitConfig:
		return cfg.ContentType
	case *TimeBasedConfig:
		return cfg.Feature
	default:
		return ""
	}
}

// Rule is the atomic policy unit. A Rule that fails Validate never
// reaches a repository.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        Type      `json:"type"`
	Enabled     bool      `json:"enabled"`
	Config      Config    `json:"config"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by"`
}

type ruleAlias struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        Type            `json:"type"`
	Enabled     bool            `json:"enabled"`
	Config      json.RawMessage `json:"config"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CreatedBy   string          `json:"created_by"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
	rawCfg, err := json.Marshal(r.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule config: %w", err)
	}
	return json.Marshal(ruleAlias{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Type:        r.Type,
		Enabled:     r.Enabled,
		Config:      rawCfg,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CreatedBy:   r.CreatedBy,
	})
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var alias ruleAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	cfg, err := DecodeConfig(alias.Type, alias.Config)
	if err != nil {
		return err
	}

	r.ID = alias.ID
	r.Name = alias.Name
	r.Description = alias.Description
	r.Type = alias.Type
	r.Enabled = alias.Enabled
	r.Config = cfg
	r.CreatedAt = alias.CreatedAt
	r.UpdatedAt = alias.UpdatedAt
	r.CreatedBy = alias.CreatedBy
	return nil
}

// DecodeConfig decodes the JSON config document for the given rule type.
func DecodeConfig(t Type, raw json.RawMessage) (Config, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing config for rule type %q", t)
	}

	var cfg Config
	switch t {
	case TypeRateLimit:
		cfg = &RateLimitConfig{}
	case TypeFeatureLimit:
		cfg = &FeatureLimitConfig{}
	case TypeAccessControl:
		cfg = &AccessControlConfig{}
	case TypeContentLimit:
		cfg = &ContentLimitConfig{}
	case TypeTimeBased:
		cfg = &TimeBasedConfig{}
	default:
		return nil, fmt.Errorf("unknown rule type %q", t)
	}

	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s config: %w", t, err)
	}
	return cfg, nil
}
