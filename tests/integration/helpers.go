package integration

import (
	"time"

	"bindery/internal/logger"
	"bindery/internal/rules"
)

const (
	containerStartupTimeout = 60
	timestampDelay          = 10 * time.Millisecond
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createRateLimitRule(name string, limit int, window rules.Window, resource string) *rules.Rule {
	return &rules.Rule{
		Name:    name,
		Type:    rules.TypeRateLimit,
		Enabled: true,
		Config: &rules.RateLimitConfig{
			Limit:    limit,
			Window:   window,
			Resource: resource,
		},
		CreatedBy: "integration-test",
	}
}

func createFeatureLimitRule(name, feature string, limit int) *rules.Rule {
	return &rules.Rule{
		Name:    name,
		Type:    rules.TypeFeatureLimit,
		Enabled: true,
		Config: &rules.FeatureLimitConfig{
			Feature: feature,
			Limit:   limit,
			Scope:   "user",
		},
		CreatedBy: "integration-test",
	}
}
