// Package backend opens the storage driver selected by configuration.
package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/capitalize-ai/player-messaging/internal/config"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	"github.com/capitalize-ai/player-messaging/internal/storage/memory"
	"github.com/capitalize-ai/player-messaging/internal/storage/sqlite"
)

// Open returns the configured store. The caller closes it.
func Open(cfg *config.Config) (storage.Store, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StorageSQLite:
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
