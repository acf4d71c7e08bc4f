// Package app owns the process-wide objects: the change bus and the
// infrastructure clients behind the cart store. Build one Context at start
// and Close it at shutdown.
package app

import (
	"context"
	"fmt"

	"github.com/angelmondragon/dashbite-backend/internal/carts"
	"github.com/angelmondragon/dashbite-backend/pkg/config"
	"github.com/angelmondragon/dashbite-backend/pkg/db"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/angelmondragon/dashbite-backend/pkg/livefeed"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	"github.com/angelmondragon/dashbite-backend/pkg/metrics"
	"github.com/angelmondragon/dashbite-backend/pkg/migrate"
	"github.com/angelmondragon/dashbite-backend/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Options selects the infrastructure a process needs.
type Options struct {
	DB config.DBConfig
	// Redis is optional; without it the live feed is disabled.
	Redis       *config.RedisConfig
	LiveFeed    bool
	AutoMigrate bool
	Registerer  prometheus.Registerer
	Logger      *logger.Logger
}

// Context is the process context.
type Context struct {
	Logger  *logger.Logger
	Bus     *events.Bus
	DB      *db.Client
	Redis   *redis.Client
	Feed    *livefeed.Feed
	Metrics *metrics.CartMetrics
	Carts   carts.Service

	closers []func() error
}

// New connects the configured clients and wires the cart service. Anything
// opened before a failure is closed again.
func New(ctx context.Context, opts Options) (*Context, error) {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	appCtx := &Context{
		Logger:  logg,
		Bus:     events.NewBus(),
		Metrics: metrics.NewCartMetrics(opts.Registerer),
	}

	dbClient, err := db.New(ctx, opts.DB, logg)
	if err != nil {
		return nil, appCtx.fail(fmt.Errorf("bootstrap database: %w", err))
	}
	appCtx.DB = dbClient
	appCtx.OnClose(dbClient.Close)

	if opts.AutoMigrate {
		if err := migrate.Up(ctx, logg, dbClient); err != nil {
			return nil, appCtx.fail(err)
		}
	}

	if opts.Redis != nil {
		redisClient, err := redis.New(ctx, *opts.Redis, logg)
		if err != nil {
			return nil, appCtx.fail(fmt.Errorf("bootstrap redis: %w", err))
		}
		appCtx.Redis = redisClient
		appCtx.OnClose(redisClient.Close)

		if opts.LiveFeed {
			feed, err := livefeed.New(redisClient, logg)
			if err != nil {
				return nil, appCtx.fail(err)
			}
			appCtx.Feed = feed
		}
	}

	if err := appCtx.wireCarts(); err != nil {
		return nil, appCtx.fail(err)
	}
	return appCtx, nil
}

func (c *Context) wireCarts() error {
	params := carts.ServiceParams{
		Repo:    carts.NewRepository(c.DB.DB()),
		Tx:      c.DB,
		Bus:     c.Bus,
		Metrics: c.Metrics,
		Logger:  c.Logger,
	}
	if c.Feed != nil {
		params.Feed = c.Feed
	}
	svc, err := carts.NewService(params)
	if err != nil {
		return fmt.Errorf("cart service: %w", err)
	}
	c.Carts = svc
	return nil
}

// OnClose registers fn to run during Close, after everything registered later.
func (c *Context) OnClose(fn func() error) {
	if fn == nil {
		return
	}
	c.closers = append(c.closers, fn)
}

// Close drops every bus listener, then closes clients in reverse order of
// registration. All close errors are returned together.
func (c *Context) Close() error {
	if c.Bus != nil {
		c.Bus.Close()
	}
	var errs error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, c.closers[i]())
	}
	c.closers = nil
	return errs
}

func (c *Context) fail(err error) error {
	return multierr.Append(err, c.Close())
}
