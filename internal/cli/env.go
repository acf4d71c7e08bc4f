package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/angelmondragon/dashbite-backend/internal/app"
	"github.com/angelmondragon/dashbite-backend/internal/cartkey"
	pkgAuth "github.com/angelmondragon/dashbite-backend/pkg/auth"
	"github.com/angelmondragon/dashbite-backend/pkg/config"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/angelmondragon/dashbite-backend/pkg/localstore"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// DeviceStore is the device-local key/value store behind the cart key and
// the access token.
type DeviceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// unavailableStore stands in for a device store that failed to open, so
// commands see ErrStorageUnavailable from every call.
type unavailableStore struct {
	err error
}

func (u unavailableStore) Get(context.Context, string) (string, bool, error) { return "", false, u.err }
func (u unavailableStore) Set(context.Context, string, string) error         { return u.err }
func (u unavailableStore) Delete(context.Context, string) error              { return u.err }
func (u unavailableStore) Close() error                                      { return nil }

// Env is everything a command needs: configuration, the device store, the
// process context and the identity resolver built over them.
type Env struct {
	Config   *config.ClientConfig
	Store    DeviceStore
	App      *app.Context
	Session  *pkgAuth.TokenSession
	Resolver *cartkey.Resolver
	Registry *prometheus.Registry
	Logger   *logger.Logger
}

func openEnv(ctx context.Context, opts *RootOptions) (*Env, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if opts.StorePath != "" {
		cfg.Device.StorePath = opts.StorePath
	}

	logg := logger.New(logger.Options{
		ServiceName: "cartctl",
		Level:       cfg.LogLevel,
		Output:      os.Stderr,
	})

	var store DeviceStore
	opened, err := localstore.Open(cfg.Device.StorePath)
	if err != nil {
		logg.Warn(ctx, "device store unavailable: "+err.Error())
		store = unavailableStore{err: fmt.Errorf("%w: %w", cartkey.ErrStorageUnavailable, err)}
	} else {
		store = opened
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		registry = prometheus.NewRegistry()
	}

	appOpts := app.Options{
		DB:          cfg.DB,
		LiveFeed:    cfg.Cart.LiveFeedEnabled,
		AutoMigrate: opts.Migrate,
		Logger:      logg,
	}
	if registry != nil {
		appOpts.Registerer = registry
	}
	if cfg.Redis.Enabled() {
		redisCfg := cfg.Redis.Full()
		appOpts.Redis = &redisCfg
	}

	appCtx, err := app.New(ctx, appOpts)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("bootstrap app context: %w", err), store.Close())
	}

	return NewEnv(cfg, store, appCtx, logg, registry), nil
}

// NewEnv assembles an Env from already opened parts.
func NewEnv(cfg *config.ClientConfig, store DeviceStore, appCtx *app.Context, logg *logger.Logger, registry *prometheus.Registry) *Env {
	if logg == nil {
		logg = logger.Nop()
	}
	session := pkgAuth.NewTokenSession(store, cfg.Device.TokenKey, cfg.JWT())
	return &Env{
		Config:  cfg,
		Store:   store,
		App:     appCtx,
		Session: session,
		Resolver: cartkey.NewResolver(cartkey.Params{
			Session: session,
			Storage: store,
			KeyName: cfg.Cart.DeviceKeyName,
		}),
		Registry: registry,
		Logger:   logg,
	}
}

// Close releases the process context and the device store.
func (e *Env) Close() error {
	var errs error
	if e.App != nil {
		errs = multierr.Append(errs, e.App.Close())
	}
	if e.Store != nil {
		errs = multierr.Append(errs, e.Store.Close())
	}
	return errs
}

// announce signals an identity change to local observers and, through the
// live feed, to observers of the previous cart key in other processes.
func (e *Env) announce(ctx context.Context, previous cartkey.Identity, op events.Op) {
	change := events.Change{CartKey: previous.Value, Op: op}
	e.App.Bus.Emit(change)
	if e.App.Feed == nil || previous.IsZero() {
		return
	}
	if err := e.App.Feed.Publish(ctx, change); err != nil {
		e.Logger.Error(e.Logger.WithCartKey(ctx, previous.Value, string(previous.Scope)), "announce identity change", err)
	}
}
