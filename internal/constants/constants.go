package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	UsageKeyPrefix     = "usage:"
	UsageRuleKeyPrefix = "usage_rule:"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	DefaultCacheReloadSeconds = 60
	DefaultSweepSeconds       = 300
)

// DefaultUsageWindow bounds counters tracked for rule types that have no
// window of their own (everything except rate_limit).
const DefaultUsageWindow = 24 * time.Hour

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	RuleBackendPostgres = "postgres"
	RuleBackendMongoDB  = "mongodb"
)

const (
	DefaultMongoDBName       = "bindery"
	MongoRulesCollection     = "enforcement_rules"
	DefaultRuleChangeTopic   = "rule_change_events"
	EnforcementLoggerService = "enforcement-service"
)
