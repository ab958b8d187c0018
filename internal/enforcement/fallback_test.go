package enforcement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"bindery/internal/logger"
	"bindery/internal/rules"
)

func TestFallbackFeatureCeilings(t *testing.T) {
	policy := NewFallbackPolicy()

	tests := []struct {
		name    string
		action  string
		caller  Caller
		allowed bool
	}{
		{
			name:    "collections under the local ceiling",
			action:  "create_collection",
			caller:  Caller{CurrentCount: 9},
			allowed: true,
		},
		{
			name:    "collections at the local ceiling",
			action:  "create_collection",
			caller:  Caller{CurrentCount: 10},
			allowed: false,
		},
		{
			name:    "cards under the local ceiling",
			action:  "add_card",
			caller:  Caller{CurrentCount: 499},
			allowed: true,
		},
		{
			name:    "cards at the local ceiling",
			action:  "add_card",
			caller:  Caller{CurrentCount: 500},
			allowed: false,
		},
		{
			name:    "share links at the local ceiling",
			action:  "create_share_link",
			caller:  Caller{CurrentCount: 3},
			allowed: false,
		},
		{
			name:    "attachments counted from content info",
			action:  "add_attachment",
			caller:  Caller{Content: &ContentInfo{Count: 20}},
			allowed: false,
		},
		{
			name:    "rate limited actions always allowed locally",
			action:  "api_call",
			caller:  Caller{},
			allowed: true,
		},
		{
			name:    "unknown actions allowed locally",
			action:  "feed_the_cat",
			caller:  Caller{},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := policy.Check(tt.action, tt.caller)
			assert.Equal(t, tt.allowed, result.Allowed)
		})
	}
}

func TestFallbackDeniesAccountOnlyActions(t *testing.T) {
	policy := NewFallbackPolicy()

	for _, action := range []string{"send_message", "share_with_user", "access_admin"} {
		result := policy.Check(action, Caller{})
		assert.False(t, result.Allowed, action)
		assert.Contains(t, result.Reason, "requires an account")
	}
}

// The fallback bypasses catalog and store entirely; a caller with nine
// collections is allowed locally regardless of what the catalog would say.
func TestUnauthenticatedCallerUsesFallback(t *testing.T) {
	strict := rules.Rule{
		ID: "r-strict", Name: "strict", Type: rules.TypeFeatureLimit, Enabled: true,
		Config: &rules.FeatureLimitConfig{Feature: "collections", Limit: 2},
	}
	catalog := &staticCatalog{rules: []rules.Rule{strict}}
	store := &failingStore{err: errors.New("must not be called")}
	svc := NewService(catalog, store, logger.NopLogger())

	result := svc.CheckAction(context.Background(), "create_collection", Caller{CurrentCount: 9})
	assert.True(t, result.Allowed)
}
