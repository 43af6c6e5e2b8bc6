package identity

import "context"

type identityContextKey struct{}

// ContextWithIdentity stores the resolved identity in context.
func ContextWithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the resolved identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	ident, _ := ctx.Value(identityContextKey{}).(*Identity)
	return ident
}
