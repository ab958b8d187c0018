package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"bindery/internal/config"
	"bindery/internal/constants"
	"bindery/internal/logger"
	"bindery/pkg/metrics"
	"bindery/pkg/models"
	"bindery/pkg/retry"
	"bindery/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaProducer{writer: w, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, event models.RuleChangeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rule change event: %w", err)
	}

	headers := tracing.InjectTraceContext(ctx, []kafka.Header{})

	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     []byte(event.RuleID),
			Value:   body,
			Headers: headers,
			Time:    time.Now(),
		},
	)
	if err != nil {
		metrics.RuleChangeEventsTotal.WithLabelValues("published", "error").Inc()
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.RuleChangeEventsTotal.WithLabelValues("published", "ok").Inc()
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg    config.KafkaConfig
	wg     sync.WaitGroup
	reader *kafka.Reader
	logger logger.Logger
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:    cfg,
		logger: log,
	}
}

// Consume reads rule change events from topic until ctx is cancelled.
// Handler errors are retried with backoff; an event that keeps failing is
// dropped, since the periodic catalog reload will reconcile the cache anyway.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
	)

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.InfowCtx(ctx, "Started consuming", "topic", topic)

		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				c.logger.ErrorwCtx(ctx, "Failed to read kafka message", "error", err, "topic", topic)
				continue
			}

			msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "broker.handle_rule_change", msg.Headers)

			var event models.RuleChangeEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				c.logger.ErrorwCtx(msgCtx, "Failed to decode rule change event",
					"error", err,
					"topic", topic,
					"offset", msg.Offset,
				)
				metrics.RuleChangeEventsTotal.WithLabelValues("consumed", "decode_error").Inc()
				span.End()
				continue
			}

			policy := retry.Policy{
				MaxAttempts:     c.cfg.Retry.MaxAttempts,
				InitialInterval: c.cfg.Retry.InitialInterval,
				MaxInterval:     c.cfg.Retry.MaxInterval,
				Multiplier:      c.cfg.Retry.Multiplier,
				MaxElapsedTime:  c.cfg.Retry.MaxElapsedTime,
			}
			if policy.MaxAttempts <= 0 {
				policy = retry.DefaultPolicy()
			}

			if err := retry.Retry(msgCtx, policy, func() error {
				return handler(msgCtx, event)
			}); err != nil {
				c.logger.ErrorwCtx(msgCtx, "Dropping rule change event after retries",
					"error", err,
					"rule_id", event.RuleID,
					"action", event.Action,
				)
				metrics.RuleChangeEventsTotal.WithLabelValues("consumed", "error").Inc()
			} else {
				metrics.RuleChangeEventsTotal.WithLabelValues("consumed", "ok").Inc()
			}
			span.End()
		}
	}()

	return nil
}

func (c *KafkaConsumer) Close() error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	c.wg.Wait()
	return err
}
