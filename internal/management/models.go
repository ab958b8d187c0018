package management

import (
	"context"
	"encoding/json"

	"bindery/internal/constants"
)

// Actor identifies who is driving a management operation. It travels in
// the request context, set by the handler from the authenticated identity.
type Actor struct {
	UserID string
	Role   string
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorContextKey{}).(Actor); ok {
		return actor
	}
	return Actor{}
}

// IsOwner reports whether the actor carries the owner capability.
func (a Actor) IsOwner() bool {
	return a.Role == constants.RoleOwner
}

func changedBy(ctx context.Context) string {
	if actor := ActorFromContext(ctx); actor.UserID != "" {
		return actor.UserID
	}
	return "system"
}

type CreateRuleRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Type        string          `json:"type" binding:"required"`
	Enabled     *bool           `json:"enabled"`
	Config      json.RawMessage `json:"config" binding:"required"`
}

type CreateFromTemplateRequest struct {
	Template  string                 `json:"template" binding:"required"`
	Overrides map[string]interface{} `json:"overrides"`
}

type UpdateRuleRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Enabled     *bool           `json:"enabled"`
	Config      json.RawMessage `json:"config"`
}

type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
