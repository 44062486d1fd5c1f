package database

import (
	"fmt"
	"os"
	"path/filepath"

	"catalog-go/internal/catalog"
	"catalog-go/internal/config"
)

// dbFileName is the SQLite file inside data_dir.
const dbFileName = "catalog.db"

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// Memory databases start empty and are migrated immediately.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock catalog.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, dbFileName), clock)
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", clock)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
