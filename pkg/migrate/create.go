package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)
	addColumnRe    = regexp.MustCompile(`^add_([a-z][a-z0-9_]*)_to_([a-z][a-z0-9_]*)$`)
)

// CreateSQLMigration writes a goose SQL migration to
//
//	<dir>/<YYYYMMDDHHMMSS>_<name>.sql
//
// The version is the current UTC time, bumped past the newest file already in
// dir. Names shaped like add_<column>_to_<table> get a portable ADD COLUMN
// body; anything else gets an empty skeleton.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe, err := migrationName(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version, err := nextVersion(dir, time.Now().UTC())
	if err != nil {
		return "", err
	}
	fullpath := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, safe))

	if err := os.WriteFile(fullpath, []byte(migrationBody(safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func migrationName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	return safe, nil
}

func nextVersion(dir string, now time.Time) (int64, error) {
	version, err := strconv.ParseInt(now.Format(versionLayout), 10, 64)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read migrations dir %q: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m := sqlFileRe.FindStringSubmatch(e.Name()); m != nil {
			if existing, err := strconv.ParseInt(m[1], 10, 64); err == nil && existing >= version {
				version = existing + 1
			}
		}
	}
	return version, nil
}

func migrationBody(safe string) string {
	if m := addColumnRe.FindStringSubmatch(safe); m != nil {
		column, table := m[1], m[2]
		return fmt.Sprintf(`-- +goose Up
ALTER TABLE %[2]s ADD COLUMN %[1]s TEXT;

-- +goose Down
ALTER TABLE %[2]s DROP COLUMN %[1]s;
`, column, table)
	}
	return fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
-- %[1]s: must run on postgres and sqlite3
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`, safe)
}
