package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Built-in starting points for common policies. A template is a complete,
// valid rule minus identity; callers override fields before creation.
var templates = map[string]Rule{
	"api_rate_limit": {
		Name:        "API Rate Limit",
		Description: "Caps API calls per user per hour",
		Type:        TypeRateLimit,
		Enabled:     true,
		Config: &RateLimitConfig{
			Limit:    100,
			Window:   WindowHour,
			Resource: "api_calls",
		},
	},
	"message_rate_limit": {
		Name:        "Message Rate Limit",
		Description: "Caps direct messages per user per day",
		Type:        TypeRateLimit,
		Enabled:     true,
		Config: &RateLimitConfig{
			Limit:    50,
			Window:   WindowDay,
			Resource: "direct_messages",
		},
	},
	"collection_limit": {
		Name:        "Collection Limit",
		Description: "Caps the number of collections a user may own",
		Type:        TypeFeatureLimit,
		Enabled:     true,
		Config: &FeatureLimitConfig{
			Feature: "collections",
			Limit:   10,
			Scope:   "user",
		},
	},
	"card_limit": {
		Name:        "Card Limit",
		Description: "Caps cards per collection",
		Type:        TypeFeatureLimit,
		Enabled:     true,
		Config: &FeatureLimitConfig{
			Feature: "cards_per_collection",
			Limit:   500,
			Scope:   "user",
		},
	},
	"share_link_limit": {
		Name:        "Share Link Limit",
		Description: "Caps active share links per user",
		Type:        TypeFeatureLimit,
		Enabled:     true,
		Config: &FeatureLimitConfig{
			Feature: "share_links",
			Limit:   3,
			Scope:   "user",
		},
	},
	"attachment_content": {
		Name:        "Attachment Content Limit",
		Description: "Constrains attachment size, type and count",
		Type:        TypeContentLimit,
		Enabled:     true,
		Config: &ContentLimitConfig{
			ContentType:  "attachment",
			MaxSize:      5 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
			MaxCount:     20,
		},
	},
	"admin_access": {
		Name:        "Admin Dashboard Access",
		Description: "Restricts the admin dashboard to privileged roles",
		Type:        TypeAccessControl,
		Enabled:     true,
		Config: &AccessControlConfig{
			Feature:      "admin_dashboard",
			AllowedRoles: []string{"owner", "admin"},
		},
	},
	"maintenance_window": {
		Name:        "Maintenance Window",
		Description: "Disables collection editing during the nightly maintenance window",
		Type:        TypeTimeBased,
		Enabled:     false,
		Config: &TimeBasedConfig{
			Feature: "collection_editing",
			Schedule: Schedule{
				StartTime: time.Date(2000, 1, 1, 2, 0, 0, 0, time.UTC),
				EndTime:   time.Date(2000, 1, 1, 4, 0, 0, 0, time.UTC),
				Timezone:  "UTC",
				Recurring: RecurringDaily,
			},
			Action: ScheduleActionDisable,
		},
	},
}

// TemplateKeys returns the available template keys in sorted order.
func TemplateKeys() []string {
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SystemActor names the provenance of rules built without an explicit
// creator, such as template instantiations.
const SystemActor = "system"

// FromTemplate instantiates the named template with overrides applied on
// top. Overrides use the rule's JSON field names; the "config" key is
// merged one level deep so a caller can change a single limit without
// restating the whole config. Identity fields (id, timestamps) are the
// caller's responsibility; created_by defaults to the system actor unless
// an override names one. The merged rule passes full validation before it
// is returned.
func FromTemplate(key string, overrides map[string]interface{}) (*Rule, error) {
	tpl, ok := templates[key]
	if !ok {
		return nil, fmt.Errorf("unknown rule template %q", key)
	}

	base, err := json.Marshal(tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template %q: %w", key, err)
	}

	var merged map[string]interface{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("failed to decode template %q: %w", key, err)
	}

	for k, v := range overrides {
		if k == "config" {
			ov, okOv := v.(map[string]interface{})
			cur, okCur := merged["config"].(map[string]interface{})
			if okOv && okCur {
				for ck, cv := range ov {
					cur[ck] = cv
				}
				continue
			}
		}
		merged[k] = v
	}

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to merge template %q: %w", key, err)
	}

	var rule Rule
	if err := json.Unmarshal(mergedJSON, &rule); err != nil {
		return nil, fmt.Errorf("failed to build rule from template %q: %w", key, err)
	}

	if rule.CreatedBy == "" {
		rule.CreatedBy = SystemActor
	}
	if err := Validate(&rule); err != nil {
		return nil, err
	}
	return &rule, nil
}
