package middleware

import (
	"context"

	"github.com/angelmondragon/dashbite-backend/internal/cartkey"
	pkgAuth "github.com/angelmondragon/dashbite-backend/pkg/auth"
)

type contextKey string

const (
	ctxCartIdentity contextKey = "cart_identity"
	ctxCartError    contextKey = "cart_identity_error"
)

func UserIDFromContext(ctx context.Context) string {
	p, _ := pkgAuth.PrincipalFromContext(ctx)
	return p.UserID
}

func SessionIDFromContext(ctx context.Context) string {
	p, _ := pkgAuth.PrincipalFromContext(ctx)
	return p.SessionID
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return pkgAuth.WithPrincipal(ctx, pkgAuth.Principal{UserID: userID})
}

// CartIdentityFromContext returns the cart identity resolved for the request.
// When resolution failed the zero identity and the failure are returned.
func CartIdentityFromContext(ctx context.Context) (cartkey.Identity, error) {
	if ctx == nil {
		return cartkey.Identity{}, nil
	}
	if err, ok := ctx.Value(ctxCartError).(error); ok {
		return cartkey.Identity{}, err
	}
	id, _ := ctx.Value(ctxCartIdentity).(cartkey.Identity)
	return id, nil
}

// WithCartIdentity injects the resolved cart identity into the context.
func WithCartIdentity(ctx context.Context, id cartkey.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCartIdentity, id)
}

func withCartError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, ctxCartError, err)
}
