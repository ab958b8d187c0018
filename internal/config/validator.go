package config

import (
	"fmt"

	"bindery/internal/constants"
)

var validRuleBackends = map[string]bool{
	constants.RuleBackendPostgres: true,
	constants.RuleBackendMongoDB:  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateStatic checks settings that can be verified without touching any
// backend. Connectivity problems surface later, at bootstrap.
func ValidateStatic(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", cfg.Server.Port)
	}

	if cfg.Logging.Level != "" && !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", cfg.Logging.Level)
	}

	if !validRuleBackends[cfg.Enforcement.RuleBackend] {
		return fmt.Errorf("enforcement.rule_backend must be %q or %q, got %q",
			constants.RuleBackendPostgres, constants.RuleBackendMongoDB, cfg.Enforcement.RuleBackend)
	}

	if cfg.Enforcement.RuleBackend == constants.RuleBackendPostgres && cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required when enforcement.rule_backend is postgres")
	}

	if cfg.Enforcement.RuleBackend == constants.RuleBackendMongoDB && cfg.Database.MongoDB.URI == "" {
		return fmt.Errorf("database.mongodb.uri is required when enforcement.rule_backend is mongodb")
	}

	if cfg.Enforcement.CacheReloadSeconds <= 0 {
		return fmt.Errorf("enforcement.cache_reload_seconds must be positive, got %d", cfg.Enforcement.CacheReloadSeconds)
	}

	if cfg.Enforcement.SweepIntervalSeconds < 0 {
		return fmt.Errorf("enforcement.sweep_interval_seconds must be non-negative, got %d", cfg.Enforcement.SweepIntervalSeconds)
	}

	if cfg.Broker.Type != "" && cfg.Broker.Type != "kafka" {
		return fmt.Errorf("broker.type must be empty or kafka, got %q", cfg.Broker.Type)
	}

	if cfg.Broker.Type == "kafka" && len(cfg.Broker.Kafka.Brokers) == 0 {
		return fmt.Errorf("broker.kafka.brokers is required when broker.type is kafka")
	}

	if cfg.Management.RateLimit.Enabled && cfg.Management.RateLimit.RPS <= 0 {
		return fmt.Errorf("management.rate_limit.rps must be positive when rate limiting is enabled")
	}

	return nil
}
