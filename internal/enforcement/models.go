package enforcement

import (
	"time"
)

// Caller carries everything known about the identity attempting an action.
// Role and permission derivation happen upstream; the engine only reads them.
type Caller struct {
	UserID        string       `json:"user_id"`
	Role          string       `json:"role"`
	Permissions   []string     `json:"permissions,omitempty"`
	Authenticated bool         `json:"authenticated"`
	CurrentCount  int64        `json:"current_count"`
	Content       *ContentInfo `json:"content,omitempty"`
}

// ContentInfo describes the payload of a content-governed action, as
// reported by the caller.
type ContentInfo struct {
	Size  int64  `json:"size"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func (c Caller) hasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Result is the decision returned for one action. Reason is set only on
// denial; Remaining and ResetTime only for rate-limit decisions.
type Result struct {
	Allowed   bool       `json:"allowed"`
	Reason    string     `json:"reason,omitempty"`
	Remaining *int64     `json:"remaining,omitempty"`
	ResetTime *time.Time `json:"reset_time,omitempty"`
	RuleID    string     `json:"rule_id,omitempty"`
	RuleName  string     `json:"rule_name,omitempty"`
}

func allow() Result {
	return Result{Allowed: true}
}

func deny(reason string) Result {
	return Result{Allowed: false, Reason: reason}
}
