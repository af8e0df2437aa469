package token

import "context"

// Principal is the authenticated caller resolved from a bearer token.
// Role comes from the account directory, not from the token claims.
type Principal struct {
	UserID  int64
	Email   string
	Role    string
	Session string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
