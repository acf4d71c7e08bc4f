package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/dashbite-backend/api/routes"
	"github.com/angelmondragon/dashbite-backend/internal/app"
	"github.com/angelmondragon/dashbite-backend/pkg/auth/session"
	"github.com/angelmondragon/dashbite-backend/pkg/config"
	"github.com/angelmondragon/dashbite-backend/pkg/instance"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	"github.com/angelmondragon/dashbite-backend/pkg/migrate"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	var (
		registerer     prometheus.Registerer
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registerer = registry
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	redisCfg := cfg.Redis
	appCtx, err := app.New(ctx, app.Options{
		DB:          cfg.DB,
		Redis:       &redisCfg,
		LiveFeed:    cfg.Cart.LiveFeedEnabled,
		AutoMigrate: migrate.DevAutoRun(cfg),
		Registerer:  registerer,
		Logger:      logg,
	})
	if err != nil {
		return fmt.Errorf("bootstrap app context: %w", err)
	}
	defer func() {
		if err := appCtx.Close(); err != nil {
			logg.Error(context.Background(), "error closing app context", err)
		}
	}()

	sessionManager, err := session.NewManager(appCtx.Redis, cfg.JWT)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	routedMetrics := metricsHandler
	if cfg.Metrics.Addr != "" {
		routedMetrics = nil
	}

	servers := []*http.Server{{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, appCtx.DB, appCtx.Redis, sessionManager,
			appCtx.Carts, appCtx.Bus, routedMetrics),
		ReadHeaderTimeout: readHeaderTimeout,
	}}
	if metricsHandler != nil && cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		servers = append(servers, &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logg.Info(logg.WithField(logCtx, "listen", srv.Addr), "starting http listener")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logg.Info(logCtx, "shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return runErr
}
