package models

import "time"

// RuleChangeEvent announces a catalog mutation so that enforcement caches
// can reload without waiting for their periodic refresh.
type RuleChangeEvent struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id,omitempty"`
	RuleType  string    `json:"rule_type,omitempty"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	ChangedBy string    `json:"changed_by,omitempty"`
}

const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionEnable  = "enable"
	ActionDisable = "disable"
)
