package enforcement

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"bindery/internal/constants"
	"bindery/internal/logger"
	"bindery/internal/rules"
	"bindery/internal/usage"
	"bindery/pkg/metrics"
)

// Service is the decision surface the rest of the product calls. CheckAction
// never returns an error: infrastructure failures degrade to a conservative
// deny, and the reason travels in the result.
type Service interface {
	CheckAction(ctx context.Context, action string, caller Caller) Result
	TrackAction(ctx context.Context, action string, caller Caller, delta int64)
	TrackUsage(ctx context.Context, userID string, ruleType rules.Type, resource string, delta int64)
}

type service struct {
	catalog  Catalog
	store    usage.Store
	fallback *FallbackPolicy
	actions  map[string]Binding
	logger   logger.Logger
	now      func() time.Time
}

type Option func(*service)

// WithActionMap replaces the built-in action table.
func WithActionMap(actions map[string]Binding) Option {
	return func(s *service) {
		s.actions = actions
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func NewService(catalog Catalog, store usage.Store, log logger.Logger, opts ...Option) Service {
	s := &service{
		catalog:  catalog,
		store:    store,
		fallback: NewFallbackPolicy(),
		actions:  DefaultActionMap(),
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CheckAction(ctx context.Context, action string, caller Caller) Result {
	start := s.now()
	result := s.check(ctx, action, caller)

	outcome := "allow"
	if !result.Allowed {
		outcome = "deny"
	}
	metrics.EnforcementDecisionsTotal.WithLabelValues(action, outcome).Inc()
	metrics.ObserveDecisionDuration(s.now().Sub(start), outcome)

	return result
}

func (s *service) check(ctx context.Context, action string, caller Caller) Result {
	if !caller.Authenticated {
		result := s.fallback.Check(action, caller)
		outcome := "allow"
		if !result.Allowed {
			outcome = "deny"
		}
		metrics.FallbackDecisionsTotal.WithLabelValues(action, outcome).Inc()
		return result
	}

	binding, ok := s.actions[action]
	if !ok {
		metrics.UnmappedActionsTotal.Inc()
		s.logger.InfowCtx(ctx, "Action has no policy mapping, allowing",
			"action", action,
			"user_id", caller.UserID,
		)
		return allow()
	}

	now := s.now()
	for _, rule := range s.catalog.RulesFor(binding.Type, binding.Resource) {
		var record *usage.Record
		if rule.Type == rules.TypeRateLimit {
			var err error
			record, err = s.store.Get(ctx, usage.Key{
				UserID:   caller.UserID,
				RuleID:   rule.ID,
				Resource: binding.Resource,
			})
			if err != nil {
				s.logger.ErrorwCtx(ctx, "Usage store read failed, denying",
					"error", err,
					"rule_id", rule.ID,
					"resource", binding.Resource,
					"user_id", caller.UserID,
				)
				return deny("enforcement error")
			}
		}

		result := evaluateRule(rule, caller, record, now)
		if !result.Allowed {
			return result
		}
	}

	return allow()
}

// TrackAction resolves the action binding and records consumption. Unmapped
// actions are a no-op.
func (s *service) TrackAction(ctx context.Context, action string, caller Caller, delta int64) {
	if !caller.Authenticated {
		return
	}
	binding, ok := s.actions[action]
	if !ok {
		return
	}
	s.TrackUsage(ctx, caller.UserID, binding.Type, binding.Resource, delta)
}

// TrackUsage increments the counter of every enabled rule governing the
// resource. Increments run concurrently and independently; failures are
// logged and swallowed, since losing an increment is less harmful than
// blocking the user twice.
func (s *service) TrackUsage(ctx context.Context, userID string, ruleType rules.Type, resource string, delta int64) {
	matched := s.catalog.RulesFor(ruleType, resource)
	if len(matched) == 0 {
		return
	}

	now := s.now()
	g, gctx := errgroup.WithContext(ctx)

	for _, rule := range matched {
		key := usage.Key{UserID: userID, RuleID: rule.ID, Resource: resource}

		resetTime := now.Add(constants.DefaultUsageWindow)
		if cfg, ok := rule.Config.(*rules.RateLimitConfig); ok {
			resetTime = cfg.Window.Span(now)
		}

		g.Go(func() error {
			if _, err := s.store.Increment(gctx, key, delta, resetTime); err != nil {
				metrics.UsageTrackingTotal.WithLabelValues("error").Inc()
				s.logger.ErrorwCtx(gctx, "Usage increment failed",
					"error", err,
					"rule_id", key.RuleID,
					"resource", key.Resource,
					"user_id", key.UserID,
				)
				return nil
			}
			metrics.UsageTrackingTotal.WithLabelValues("ok").Inc()
			return nil
		})
	}

	_ = g.Wait()
}
