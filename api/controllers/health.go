package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/dashbite-backend/api/responses"
	"github.com/angelmondragon/dashbite-backend/pkg/config"
	"github.com/angelmondragon/dashbite-backend/pkg/errors"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is any dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Dashbite-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency; nil pingers are skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Dashbite-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]string{}
		failed := false
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "dependency", name), "readiness check failed: "+err.Error())
				}
				checks[name] = "down"
				failed = true
				continue
			}
			checks[name] = "up"
		}

		if failed {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
