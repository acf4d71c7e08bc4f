package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/dashbite-backend/api/responses"
	pkgAuth "github.com/angelmondragon/dashbite-backend/pkg/auth"
	"github.com/angelmondragon/dashbite-backend/pkg/auth/session"
	"github.com/angelmondragon/dashbite-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/dashbite-backend/pkg/errors"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the caller.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, verifier, logg, true)
}

// OptionalAuth lets anonymous requests through untouched. A bearer token that
// is present must still be valid.
func OptionalAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, verifier, logg, false)
}

func authenticate(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			principal, err := verify(r.Context(), cfg, verifier, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := pkgAuth.WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithUserID(ctx, principal.UserID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verify(ctx context.Context, cfg config.JWTConfig, verifier session.AccessSessionChecker, token string) (pkgAuth.Principal, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return pkgAuth.Principal{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	if claims.ID == "" {
		return pkgAuth.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	if verifier != nil {
		ok, err := verifier.HasSession(ctx, claims.ID)
		if err != nil {
			return pkgAuth.Principal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !ok {
			return pkgAuth.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}

	return pkgAuth.Principal{UserID: claims.UserID.String(), SessionID: claims.ID}, nil
}
