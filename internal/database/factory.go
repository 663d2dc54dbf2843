package database

import (
	"context"
	"fmt"
	"path/filepath"

	"animlib/internal/config"
)

// FileName is the name of the database file inside the data directory.
const FileName = "animlib.db"

// PathFromConfig returns the database path the config selects.
func PathFromConfig(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return "", fmt.Errorf("data_dir required for sqlite database")
		}
		return filepath.Join(cfg.DataDir, FileName), nil
	case "memory":
		return MemoryPath, nil
	default:
		return "", fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// NewDatabaseFromConfig opens the database described by the database config
// type. opts.BusyTimeout is taken from the config when set there.
func NewDatabaseFromConfig(ctx context.Context, cfg config.DatabaseConfig, opts Options) (*Database, error) {
	path, err := PathFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.BusyTimeoutMS > 0 {
		opts.BusyTimeout = cfg.BusyTimeout()
	}
	return Open(ctx, path, opts)
}
