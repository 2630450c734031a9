package shared

import "context"

// ActorKind distinguishes how a request was authenticated upstream.
type ActorKind string

const (
	// ActorKindUser is a staff user authenticated by the gateway.
	ActorKindUser ActorKind = "user"
	// ActorKindDevice is a handheld device authenticated by its access key.
	ActorKindDevice ActorKind = "device"
)

// ActorContext carries the already-authenticated identity for a request.
// Authentication itself happens outside this service; the boundary middleware
// resolves the forwarded identity headers once and every layer below receives
// plain data.
type ActorContext struct {
	CompanyID int64
	ActorID   int64
	DeviceID  int64
	Kind      ActorKind
}

// Authenticated reports whether the context carries a usable tenant identity.
func (a ActorContext) Authenticated() bool {
	return a.CompanyID != 0 && a.ActorID != 0
}

type actorContextKey struct{}

// ContextWithActor stores the actor context in ctx.
func ContextWithActor(ctx context.Context, actor ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor context. The second return is false
// when no authenticated identity is attached to the request.
func ActorFromContext(ctx context.Context) (ActorContext, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(ActorContext)
	return actor, ok && actor.Authenticated()
}
