package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/angelmondragon/dashbite-backend/pkg/config"
	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// EmbeddedDir is the migrations directory inside the embedded filesystem.
const EmbeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Run executes a standard goose command that requires a DB connection. An
// empty dir runs the migrations compiled into the binary.
func Run(ctx context.Context, db *sql.DB, driver string, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	resolved, err := prepare(driver, dir)
	if err != nil {
		return err
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, resolved, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, driver string, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	resolved, err := prepare(driver, dir)
	if err != nil {
		return err
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil

	case current < target:
		if err := goose.UpToContext(ctx, db, resolved, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil

	default:
		if err := goose.DownToContext(ctx, db, resolved, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}

// Dialect maps a configured DB driver to its goose dialect.
func Dialect(driver string) string {
	if strings.EqualFold(strings.TrimSpace(driver), config.DBDriverSQLite) {
		return "sqlite3"
	}
	return "postgres"
}

func prepare(driver, dir string) (string, error) {
	if err := goose.SetDialect(Dialect(driver)); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	if dir == "" {
		goose.SetBaseFS(embedded)
		return EmbeddedDir, nil
	}
	goose.SetBaseFS(nil)
	return dir, nil
}
