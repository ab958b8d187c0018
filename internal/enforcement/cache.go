package enforcement

import (
	"context"
	"sync"
	"time"

	"bindery/internal/logger"
	"bindery/internal/rules"
	"bindery/pkg/metrics"
	"bindery/pkg/models"
)

// Catalog is the read side the coordinator evaluates against. Returned
// slices contain enabled rules only, in catalog order.
type Catalog interface {
	RulesFor(ruleType rules.Type, resource string) []rules.Rule
}

// Cache holds the enabled rules in memory. A periodic reload is the
// correctness baseline; rule-change events from the broker trigger an
// immediate reload on top of it.
type Cache struct {
	repo     rules.Repository
	interval time.Duration
	logger   logger.Logger

	mu    sync.RWMutex
	rules []rules.Rule
}

func NewCache(repo rules.Repository, interval time.Duration, log logger.Logger) *Cache {
	return &Cache{
		repo:     repo,
		interval: interval,
		logger:   log,
	}
}

// Load replaces the cached rule set from the repository.
func (c *Cache) Load(ctx context.Context) error {
	loaded, err := c.repo.ListEnabled(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.rules = loaded
	c.mu.Unlock()

	metrics.ActiveRules.Set(float64(len(loaded)))
	c.logger.InfowCtx(ctx, "Rule catalog loaded", "count", len(loaded))
	return nil
}

// Run reloads the catalog on the configured interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Load(ctx); err != nil {
				metrics.CatalogReloadsTotal.WithLabelValues("interval", "error").Inc()
				c.logger.ErrorwCtx(ctx, "Rule catalog reload failed", "error", err)
				continue
			}
			metrics.CatalogReloadsTotal.WithLabelValues("interval", "ok").Inc()
		}
	}
}

// HandleRuleChange is the broker consumer hook. Any change event simply
// triggers a full reload; the event payload identifies what changed but the
// repository is the source of truth.
func (c *Cache) HandleRuleChange(ctx context.Context, event models.RuleChangeEvent) error {
	c.logger.InfowCtx(ctx, "Rule change event received",
		"rule_id", event.RuleID,
		"action", event.Action,
		"changed_by", event.ChangedBy,
	)

	if err := c.Load(ctx); err != nil {
		metrics.CatalogReloadsTotal.WithLabelValues("event", "error").Inc()
		return err
	}
	metrics.CatalogReloadsTotal.WithLabelValues("event", "ok").Inc()
	return nil
}

func (c *Cache) RulesFor(ruleType rules.Type, resource string) []rules.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []rules.Rule
	for _, rule := range c.rules {
		if rule.Type != ruleType || !rule.Enabled {
			continue
		}
		if rules.GovernedResource(rule.Config) != resource {
			continue
		}
		matched = append(matched, rule)
	}
	return matched
}

// Len reports the cached rule count, for health reporting.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}
