package usage

import (
	"context"
	"time"
)

// Store persists per-user counters. Implementations treat a counter whose
// reset time has passed as absent: Get returns nil and Increment starts a
// fresh window.
type Store interface {
	// Get returns the live counter for key, or nil if none exists.
	Get(ctx context.Context, key Key) (*Record, error)

	// Increment adds delta to the counter for key, creating it with the
	// given reset time when absent or expired. Returns the resulting record.
	Increment(ctx context.Context, key Key, delta int64, resetTime time.Time) (*Record, error)

	// Reset removes the counter for key.
	Reset(ctx context.Context, key Key) error

	// DeleteByRule removes every counter belonging to ruleID and returns
	// how many were removed.
	DeleteByRule(ctx context.Context, ruleID string) (int64, error)

	// Stats aggregates the live counters for ruleID.
	Stats(ctx context.Context, ruleID string) (*Stats, error)

	// SweepExpired drops index entries whose counters have expired and
	// returns how many were dropped.
	SweepExpired(ctx context.Context) (int64, error)
}

// nowFunc is swapped in tests.
type nowFunc func() time.Time
