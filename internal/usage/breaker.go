package usage

import (
	"context"
	"fmt"
	"time"

	"bindery/internal/config"
	"bindery/pkg/circuitbreaker"
)

// CircuitBreakerStore shields callers from a struggling backend. When the
// breaker is disabled it is a transparent pass-through.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store}
	}

	cbConfig := circuitbreaker.DefaultConfig("usage-store")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = uint32(cfg.MaxRequests)
	}
	if cfg.IntervalSeconds > 0 {
		cbConfig.Interval = time.Duration(cfg.IntervalSeconds) * time.Second
	}
	if cfg.TimeoutSeconds > 0 {
		cbConfig.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if s.cb == nil {
		return fn()
	}

	result, err := s.cb.ExecuteWithContext(ctx, fn)
	s.cb.RecordRequest(err == nil)

	if err != nil && s.cb.IsOpen() {
		return nil, fmt.Errorf("circuit breaker is open for usage-store: %w", err)
	}
	return result, err
}

func (s *CircuitBreakerStore) Get(ctx context.Context, key Key) (*Record, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.store.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	record, _ := result.(*Record)
	return record, nil
}

func (s *CircuitBreakerStore) Increment(ctx context.Context, key Key, delta int64, resetTime time.Time) (*Record, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.store.Increment(ctx, key, delta, resetTime)
	})
	if err != nil {
		return nil, err
	}
	record, ok := result.(*Record)
	if !ok {
		return nil, fmt.Errorf("store returned invalid result type")
	}
	return record, nil
}

func (s *CircuitBreakerStore) Reset(ctx context.Context, key Key) error {
	_, err := s.execute(ctx, func() (interface{}, error) {
		return nil, s.store.Reset(ctx, key)
	})
	return err
}

func (s *CircuitBreakerStore) DeleteByRule(ctx context.Context, ruleID string) (int64, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.store.DeleteByRule(ctx, ruleID)
	})
	if err != nil {
		return 0, err
	}
	deleted, _ := result.(int64)
	return deleted, nil
}

func (s *CircuitBreakerStore) Stats(ctx context.Context, ruleID string) (*Stats, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.store.Stats(ctx, ruleID)
	})
	if err != nil {
		return nil, err
	}
	stats, ok := result.(*Stats)
	if !ok {
		return nil, fmt.Errorf("store returned invalid result type")
	}
	return stats, nil
}

func (s *CircuitBreakerStore) SweepExpired(ctx context.Context) (int64, error) {
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.store.SweepExpired(ctx)
	})
	if err != nil {
		return 0, err
	}
	removed, _ := result.(int64)
	return removed, nil
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

func (s *CircuitBreakerStore) IsOpen() bool {
	return s.cb != nil && s.cb.IsOpen()
}
