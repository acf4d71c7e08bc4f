package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/dashbite-backend/pkg/config"
	"github.com/angelmondragon/dashbite-backend/pkg/db"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
)

// DevAutoRun reports whether a process should apply the embedded migrations
// on boot: dev environments with auto-migrate enabled.
func DevAutoRun(cfg *config.Config) bool {
	return cfg != nil && cfg.App.IsDev() && cfg.App.AutoMigrate
}

// Up applies every embedded migration not yet recorded on client.
func Up(ctx context.Context, logg *logger.Logger, client *db.Client) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"dialect": client.Dialect(), "dir": EmbeddedDir})
	logg.Info(ctx, "running Goose migrations")
	SetLogger(ctx, logg)

	if err := Run(ctx, sqlDB, client.Dialect(), "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}
