// Package localstore is the device-local key/value store used by clients to
// persist the device cart key and the signed-in access token.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/dashbite-backend/pkg/db/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store persists DeviceSetting rows in a SQLite file.
type Store struct {
	db *gorm.DB
}

// Open creates (if needed) and opens the store at path. A leading "~/" is
// expanded to the user's home directory; ":memory:" opens a private in-memory store.
func Open(path string) (*Store, error) {
	dsn, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening device store: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("device store handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := conn.AutoMigrate(&models.DeviceSetting{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating device store: %w", err)
	}
	return &Store{db: conn}, nil
}

func resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("device store path is required")
	}
	if path == ":memory:" {
		return "file::memory:", nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating device store directory: %w", err)
	}
	return path, nil
}

// Get returns the value stored under key; found is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var row models.DeviceSetting
	err := s.db.WithContext(ctx).Where(map[string]any{"key": key}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	row := models.DeviceSetting{Key: key, Value: value}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

// Delete removes key; deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where(map[string]any{"key": key}).Delete(&models.DeviceSetting{}).Error
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
