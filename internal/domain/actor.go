package domain

import (
	"context"
)

// Actor identifies who performs a mutation, stamped into audit columns.
type Actor struct {
	ID string
	IP string
}

// SystemActor is used when no request identity is attached, e.g. migrations
// and tests.
var SystemActor = Actor{ID: "system", IP: "127.0.0.1"}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the request actor, falling back to SystemActor.
func ActorFromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok && a.ID != "" {
		return a
	}
	return SystemActor
}
