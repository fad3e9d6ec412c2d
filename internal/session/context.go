package session

import "context"

type ctxKey string

const identityKey ctxKey = "session_identity"

// ContextWithIdentity stores the verified identity in the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the verified identity, if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey).(Identity)
	if !ok || v.UserID == 0 {
		return Identity{}, false
	}
	return v, true
}
