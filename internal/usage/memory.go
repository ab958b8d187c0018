package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store for tests and single-process setups. Semantics
// mirror RedisStore, including expired counters reading as absent.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	byRule  map[string]map[string]bool
	now     nowFunc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byRule:  make(map[string]map[string]bool),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key.String()]
	if !ok || record.Expired(s.now()) {
		return nil, nil
	}

	copied := *record
	return &copied, nil
}

func (s *MemoryStore) Increment(_ context.Context, key Key, delta int64, resetTime time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key.String()

	record, ok := s.records[k]
	if !ok || record.Expired(now) {
		record = &Record{
			UserID:    key.UserID,
			RuleID:    key.RuleID,
			Resource:  key.Resource,
			Count:     delta,
			ResetTime: resetTime,
			UpdatedAt: now,
		}
	} else {
		record.Count += delta
		record.UpdatedAt = now
	}
	s.records[k] = record

	if s.byRule[key.RuleID] == nil {
		s.byRule[key.RuleID] = make(map[string]bool)
	}
	s.byRule[key.RuleID][k] = true

	copied := *record
	return &copied, nil
}

func (s *MemoryStore) Reset(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	delete(s.records, k)
	if idx := s.byRule[key.RuleID]; idx != nil {
		delete(idx, k)
	}
	return nil
}

func (s *MemoryStore) DeleteByRule(_ context.Context, ruleID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k := range s.byRule[ruleID] {
		if _, ok := s.records[k]; ok {
			delete(s.records, k)
			deleted++
		}
	}
	delete(s.byRule, ruleID)
	return deleted, nil
}

func (s *MemoryStore) Stats(_ context.Context, ruleID string) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{RuleID: ruleID}
	users := make(map[string]bool)
	now := s.now()

	for k := range s.byRule[ruleID] {
		record, ok := s.records[k]
		if !ok || record.Expired(now) {
			continue
		}
		users[record.UserID] = true
		stats.TotalCount += record.Count
		if record.UpdatedAt.After(stats.LastActivity) {
			stats.LastActivity = record.UpdatedAt
		}
	}

	stats.DistinctUsers = int64(len(users))
	return stats, nil
}

func (s *MemoryStore) SweepExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64

	for ruleID, idx := range s.byRule {
		for k := range idx {
			record, ok := s.records[k]
			if ok && !record.Expired(now) {
				continue
			}
			delete(s.records, k)
			delete(idx, k)
			removed++
		}
		if len(idx) == 0 {
			delete(s.byRule, ruleID)
		}
	}

	return removed, nil
}
