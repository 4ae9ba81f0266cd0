package shared

import "context"

type contextKey string

const actorKey contextKey = "actor"

// Actor identifies the authenticated user performing an operation. The core
// never authenticates; it only records who acted on every ledger write.
type Actor struct {
	ID   int64
	Name string
}

// ContextWithActor stores the actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor stored in the context, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
