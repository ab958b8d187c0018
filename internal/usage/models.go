package usage

import (
	"fmt"
	"time"

	"bindery/internal/constants"
)

// Key identifies one counter: a user consuming one governed resource
// under one rule.
type Key struct {
	UserID   string
	RuleID   string
	Resource string
}

func (k Key) String() string {
	return fmt.Sprintf("%s%s:%s:%s", constants.UsageKeyPrefix, k.UserID, k.RuleID, k.Resource)
}

// RuleIndexKey is the set that tracks all counter keys belonging to a rule.
func RuleIndexKey(ruleID string) string {
	return constants.UsageRuleKeyPrefix + ruleID
}

// Record is the stored state of one counter. ResetTime is fixed at the
// counter's creation and never moves on subsequent increments.
type Record struct {
	UserID    string    `json:"user_id"`
	RuleID    string    `json:"rule_id"`
	Resource  string    `json:"resource"`
	Count     int64     `json:"count"`
	ResetTime time.Time `json:"reset_time"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the counter's window has passed. An expired
// record reads as zero.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ResetTime)
}

// Stats aggregates live counters for a rule.
type Stats struct {
	RuleID        string    `json:"rule_id"`
	DistinctUsers int64     `json:"distinct_users"`
	TotalCount    int64     `json:"total_count"`
	LastActivity  time.Time `json:"last_activity,omitempty"`
}
