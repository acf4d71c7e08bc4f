package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/dashbite-backend/api/controllers"
	"github.com/angelmondragon/dashbite-backend/api/middleware"
	"github.com/angelmondragon/dashbite-backend/internal/carts"
	"github.com/angelmondragon/dashbite-backend/pkg/auth/session"
	"github.com/angelmondragon/dashbite-backend/pkg/config"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
)

type sessionManager interface {
	session.AccessSessionChecker
	Revoke(context.Context, string) error
}

type changeEmitter interface {
	Emit(change events.Change) int
}

// NewRouter mounts the HTTP surface. redisP, sessions and metricsHandler may be
// nil; without a session manager tokens are checked by signature only and
// logout is unavailable.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	sessions sessionManager,
	cartService carts.Service,
	bus changeEmitter,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var verifier session.AccessSessionChecker
	if sessions != nil {
		verifier = sessions
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}))
	})

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, verifier, logg))
		r.Post("/logout", controllers.AuthLogout(sessions, bus, logg))
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, verifier, logg))
		r.Use(middleware.CartIdentity(cfg.Cart, logg))

		r.Get("/", controllers.CartFetch(cartService, logg))
		r.Delete("/", controllers.CartClear(cartService, logg))
		r.Get("/count", controllers.CartCount(cartService, logg))
		r.Post("/items", controllers.CartAddItem(cartService, logg))
		r.Patch("/items/{lineId}", controllers.CartUpdateItem(cartService, logg))
		r.Delete("/items/{lineId}", controllers.CartRemoveItem(cartService, logg))
	})

	return r
}
