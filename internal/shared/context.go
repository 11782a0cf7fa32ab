package shared

import "context"

// Identity is a verified caller identity: the resolved user id plus the
// authentication source reported by the verification endpoint.
type Identity struct {
	UserID string `json:"user_id"`
	Source string `json:"source"`
}

type identityContextKey struct{}

// ContextWithIdentity stores the resolved identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the resolved identity from context. The
// zero Identity means the request is anonymous.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}
