package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/dashbite-backend/api/middleware"
	"github.com/angelmondragon/dashbite-backend/api/responses"
	"github.com/angelmondragon/dashbite-backend/pkg/errors"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
)

type sessionRevoker interface {
	Revoke(ctx context.Context, accessID string) error
}

type changeEmitter interface {
	Emit(change events.Change) int
}

// AuthLogout revokes the session behind the presented access token. The
// device cart key cookie is left alone so the anonymous cart survives.
func AuthLogout(manager sessionRevoker, bus changeEmitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if manager == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "session manager unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeUnauthorized, "missing session id"))
			return
		}

		if err := manager.Revoke(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeDependency, err, "revoke session"))
			return
		}

		if bus != nil {
			bus.Emit(events.Change{CartKey: middleware.UserIDFromContext(r.Context()), Op: events.OpLogout})
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}
