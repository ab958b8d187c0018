package management

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bindery/internal/broker"
	"bindery/internal/rules"
	"bindery/pkg/models"
	"bindery/pkg/retry"
)

// RuleEventProducer publishes rule change events so enforcement caches
// reload promptly. Publishing is retried with backoff; the periodic cache
// reload covers anything that still slips through.
type RuleEventProducer struct {
	producer broker.Producer
	topic    string
	policy   retry.Policy
}

func NewRuleEventProducer(producer broker.Producer, topic string) *RuleEventProducer {
	return &RuleEventProducer{
		producer: producer,
		topic:    topic,
		policy:   retry.DefaultPolicy(),
	}
}

func (p *RuleEventProducer) Publish(ctx context.Context, action string, rule *rules.Rule, changedBy string) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}

	event := models.RuleChangeEvent{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		RuleType:  string(rule.Type),
		Action:    action,
		Timestamp: time.Now(),
		ChangedBy: changedBy,
	}

	return retry.Retry(ctx, p.policy, func() error {
		return p.producer.Publish(ctx, p.topic, event)
	})
}
