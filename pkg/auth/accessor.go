package auth

import (
	"context"
	"strings"

	"github.com/angelmondragon/dashbite-backend/pkg/config"
)

// TokenSource returns the raw access token persisted on the device, if any.
type TokenSource interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// TokenSession answers "who is signed in" for device-side clients by parsing the
// stored access token. A missing, unreadable, expired or forged token means
// unauthenticated; none of those are errors for the caller.
type TokenSession struct {
	source   TokenSource
	tokenKey string
	cfg      config.JWTConfig
}

// NewTokenSession binds the accessor to the device store entry holding the token.
func NewTokenSession(source TokenSource, tokenKey string, cfg config.JWTConfig) *TokenSession {
	return &TokenSession{source: source, tokenKey: tokenKey, cfg: cfg}
}

// IsAuthenticated reports whether a valid credential is present.
func (s *TokenSession) IsAuthenticated(ctx context.Context) bool {
	_, ok := s.CurrentUserID(ctx)
	return ok
}

// CurrentUserID returns the user id carried by a valid stored token.
func (s *TokenSession) CurrentUserID(ctx context.Context) (string, bool) {
	if s == nil || s.source == nil {
		return "", false
	}
	raw, found, err := s.source.Get(ctx, s.tokenKey)
	if err != nil || !found || strings.TrimSpace(raw) == "" {
		return "", false
	}
	claims, err := ParseAccessToken(s.cfg, strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return claims.UserID.String(), true
}
