package shared

import "context"

type actorContextKey struct{}

// Actor identifies the authenticated admin or employee performing a call.
// The identity is supplied by the external auth layer and only recorded.
type Actor struct {
	ID      int64
	IsAdmin bool
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
