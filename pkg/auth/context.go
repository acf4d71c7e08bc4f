package auth

import (
	"context"
	"strings"
)

type principalKey struct{}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID    string
	SessionID string
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller placed by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || strings.TrimSpace(p.UserID) == "" {
		return Principal{}, false
	}
	return p, true
}

// ContextSession reads the signed-in user from the request context.
type ContextSession struct{}

func (ContextSession) IsAuthenticated(ctx context.Context) bool {
	_, ok := PrincipalFromContext(ctx)
	return ok
}

func (ContextSession) CurrentUserID(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}
