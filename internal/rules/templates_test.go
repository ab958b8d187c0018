package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateKeys(t *testing.T) {
	keys := TemplateKeys()
	assert.Contains(t, keys, "api_rate_limit")
	assert.Contains(t, keys, "collection_limit")
	assert.Contains(t, keys, "maintenance_window")
	assert.IsNonDecreasing(t, keys)
}

func TestFromTemplateDefaults(t *testing.T) {
	rule, err := FromTemplate("api_rate_limit", nil)
	require.NoError(t, err)

	assert.Equal(t, TypeRateLimit, rule.Type)
	assert.True(t, rule.Enabled)
	assert.Equal(t, SystemActor, rule.CreatedBy)

	cfg, ok := rule.Config.(*RateLimitConfig)
	require.True(t, ok)
	assert.Equal(t, 100, cfg.Limit)
	assert.Equal(t, WindowHour, cfg.Window)
	assert.Equal(t, "api_calls", cfg.Resource)
}

func TestFromTemplateOverrides(t *testing.T) {
	rule, err := FromTemplate("collection_limit", map[string]interface{}{
		"name": "Premium Collection Limit",
		"config": map[string]interface{}{
			"limit": 50,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Premium Collection Limit", rule.Name)

	cfg, ok := rule.Config.(*FeatureLimitConfig)
	require.True(t, ok)
	assert.Equal(t, 50, cfg.Limit)
	// Untouched config fields survive the merge.
	assert.Equal(t, "collections", cfg.Feature)
	assert.Equal(t, "user", cfg.Scope)
}

func TestFromTemplateUnknownKey(t *testing.T) {
	_, err := FromTemplate("no_such_template", nil)
	assert.Error(t, err)
}

func TestFromTemplateInvalidOverride(t *testing.T) {
	_, err := FromTemplate("collection_limit", map[string]interface{}{
		"config": map[string]interface{}{
			"limit": -5,
		},
	})
	assert.Error(t, err)
}

func TestFromTemplateDoesNotMutateTemplate(t *testing.T) {
	_, err := FromTemplate("api_rate_limit", map[string]interface{}{
		"config": map[string]interface{}{"limit": 1},
	})
	require.NoError(t, err)

	again, err := FromTemplate("api_rate_limit", nil)
	require.NoError(t, err)

	cfg := again.Config.(*RateLimitConfig)
	assert.Equal(t, 100, cfg.Limit)
}

func TestFromTemplateCreatedByOverride(t *testing.T) {
	rule, err := FromTemplate("api_rate_limit", map[string]interface{}{
		"created_by": "owner-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "owner-9", rule.CreatedBy)
}

// Every built-in template must instantiate into a rule that validates
// with no further edits.
func TestBuiltinTemplatesAreValid(t *testing.T) {
	for _, key := range TemplateKeys() {
		t.Run(key, func(t *testing.T) {
			rule, err := FromTemplate(key, nil)
			require.NoError(t, err)
			assert.NotEmpty(t, rule.Name)
			assert.True(t, rule.Type.Valid())
			assert.NoError(t, Validate(rule))
		})
	}
}
