package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/dashbite-backend/internal/cartsync"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type watchResult struct {
	Count   int    `json:"count"`
	CartKey string `json:"cart_key,omitempty"`
	Scope   string `json:"scope,omitempty"`
}

// NewWatchCommand creates the watch command: it mounts a synchronizer and
// prints the count every time it is applied, until interrupted.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the item count of the active cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withEnv(cmd, rootOpts, func(env *Env) error {
				return runWatch(ctx, env, newPrinter(rootOpts.Format, cmd.OutOrStdout()))
			})
		},
	}
}

func runWatch(ctx context.Context, env *Env, out *printer) error {
	var syncer *cartsync.Synchronizer
	opts := cartsync.Options{
		Resolver:     env.Resolver,
		Reader:       env.App.Carts,
		Signals:      env.App.Bus,
		DiscardStale: env.Config.Cart.DiscardStale,
		Metrics:      env.App.Metrics,
		Logger:       env.Logger,
		OnChange: func(count int) {
			identity := syncer.Identity()
			_ = out.print(watchResult{Count: count, CartKey: identity.Value, Scope: string(identity.Scope)}, "%d", count)
		},
	}
	if env.App.Feed != nil {
		opts.Feed = env.App.Feed
	}

	syncer, err := cartsync.New(opts)
	if err != nil {
		return err
	}

	stopMetrics := serveMetrics(ctx, env)
	defer stopMetrics()

	if err := syncer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		env.Logger.Error(ctx, "initial cart refresh failed", err)
	}
	defer syncer.Stop()

	<-ctx.Done()
	return nil
}

// serveMetrics exposes the synchronizer metrics while watch runs, when a
// metrics address is configured.
func serveMetrics(ctx context.Context, env *Env) func() {
	if env.Registry == nil || env.Config.Metrics.Addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: env.Config.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Logger.Error(env.Logger.WithField(ctx, "listen", srv.Addr), "metrics listener stopped", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
