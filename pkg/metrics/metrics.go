package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EnforcementDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enforcement_decisions_total",
			Help: "Total number of enforcement decisions (count)",
		},
		[]string{"action", "outcome"},
	)

	EnforcementDecisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enforcement_decision_duration_ms",
			Help:    "Decision latency for checkAction in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"outcome"},
	)

	UsageTrackingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_tracking_total",
			Help: "Total number of usage counter increments (count)",
		},
		[]string{"status"},
	)

	UsageSweepDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_sweep_deleted_total",
			Help: "Expired usage records removed by the advisory sweeper (count)",
		},
	)

	ActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "enforcement_active_rules",
			Help: "Number of enabled rules in the catalog cache (count)",
		},
	)

	FallbackDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enforcement_fallback_decisions_total",
			Help: "Decisions served by the local fallback policy (count)",
		},
		[]string{"action", "outcome"},
	)

	UnmappedActionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enforcement_unmapped_actions_total",
			Help: "Actions checked without a policy mapping, allowed by design (count)",
		},
	)

	CatalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enforcement_catalog_reloads_total",
			Help: "Catalog cache reloads by trigger and status (count)",
		},
		[]string{"trigger", "status"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "management_api_rate_limit_requests_total",
			Help: "Admin API requests by rate limit outcome (count)",
		},
		[]string{"status"},
	)

	RuleChangeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_change_events_total",
			Help: "Rule change events published or consumed (count)",
		},
		[]string{"direction", "status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failed requests through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(
		EnforcementDecisionsTotal,
		EnforcementDecisionDuration,
		UsageTrackingTotal,
		UsageSweepDeletedTotal,
		ActiveRules,
		FallbackDecisionsTotal,
		UnmappedActionsTotal,
		CatalogReloadsTotal,
		RateLimitRequestsTotal,
		RuleChangeEventsTotal,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func ObserveDecisionDuration(d time.Duration, outcome string) {
	EnforcementDecisionDuration.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}
