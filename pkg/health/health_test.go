package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubChecker struct {
	name string
	err  error
}

func (c *stubChecker) Name() string                { return c.name }
func (c *stubChecker) Check(context.Context) error { return c.err }

func TestCheckAllHealthy(t *testing.T) {
	registry := NewCheckerRegistry()
	registry.Register(&stubChecker{name: "redis"})
	registry.RegisterOptional(&stubChecker{name: "postgresql"})

	h := registry.Check(context.Background())

	assert.Equal(t, StatusHealthy, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["redis"].Status)
	assert.Equal(t, StatusHealthy, h.Checks["postgresql"].Status)
}

func TestCheckOptionalFailureDegrades(t *testing.T) {
	registry := NewCheckerRegistry()
	registry.Register(&stubChecker{name: "redis"})
	registry.RegisterOptional(&stubChecker{name: "postgresql", err: errors.New("connection refused")})

	h := registry.Check(context.Background())

	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, StatusDegraded, h.Checks["postgresql"].Status)
	assert.Equal(t, "connection refused", h.Checks["postgresql"].Message)
}

func TestCheckCriticalFailureWins(t *testing.T) {
	registry := NewCheckerRegistry()
	registry.Register(&stubChecker{name: "redis", err: errors.New("down")})
	registry.RegisterOptional(&stubChecker{name: "postgresql", err: errors.New("down")})

	h := registry.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["redis"].Status)
	assert.Equal(t, StatusDegraded, h.Checks["postgresql"].Status)
}
