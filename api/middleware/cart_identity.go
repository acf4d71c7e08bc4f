package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/dashbite-backend/internal/cartkey"
	pkgAuth "github.com/angelmondragon/dashbite-backend/pkg/auth"
	"github.com/angelmondragon/dashbite-backend/pkg/config"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	"github.com/google/uuid"
)

// CookieStorage keeps the device cart key in a browser cookie.
type CookieStorage struct {
	r   *http.Request
	w   http.ResponseWriter
	cfg config.CartConfig
	now func() time.Time
}

// NewCookieStorage binds the storage to one request/response pair.
func NewCookieStorage(w http.ResponseWriter, r *http.Request, cfg config.CartConfig) *CookieStorage {
	return &CookieStorage{r: r, w: w, cfg: cfg, now: time.Now}
}

// Get returns the cookie value. Values that are not device keys we issued are
// reported as absent so a fresh key replaces them.
func (s *CookieStorage) Get(_ context.Context, key string) (string, bool, error) {
	c, err := s.r.Cookie(key)
	if errors.Is(err, http.ErrNoCookie) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	value := strings.TrimSpace(c.Value)
	if _, err := uuid.Parse(value); err != nil {
		return "", false, nil
	}
	return value, true, nil
}

// Set writes the key as a long-lived, http-only cookie.
func (s *CookieStorage) Set(_ context.Context, key, value string) error {
	ttl := s.cfg.DeviceCookieTTL
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.DeviceCookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
		Expires:  s.now().Add(ttl).UTC(),
	})
	return nil
}

// CartIdentity resolves the cart identity for the request: the authenticated
// user, otherwise the device key cookie, issuing one when missing. A failed
// resolution is recorded on the context instead of aborting the request.
func CartIdentity(cfg config.CartConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolver := cartkey.NewResolver(cartkey.Params{
				Session: pkgAuth.ContextSession{},
				Storage: NewCookieStorage(w, r, cfg),
				KeyName: cfg.DeviceKeyName,
			})

			ctx := r.Context()
			id, err := resolver.Resolve(ctx)
			if err != nil {
				if logg != nil {
					logg.Warn(ctx, "cart identity unavailable: "+err.Error())
				}
				next.ServeHTTP(w, r.WithContext(withCartError(ctx, err)))
				return
			}

			ctx = WithCartIdentity(ctx, id)
			if logg != nil {
				ctx = logg.WithCartKey(ctx, id.Value, string(id.Scope))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
