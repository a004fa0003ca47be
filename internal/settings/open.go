package settings

import (
	"fmt"

	"github.com/theroutercompany/devdirect_website/internal/config"
)

// Open builds the storage selected by cfg. Stores holding connections also
// implement io.Closer.
func Open(cfg config.SettingsConfig) (Storage, error) {
	switch cfg.Store {
	case "", config.StoreNone:
		return Unavailable{}, nil
	case config.StoreMemory:
		return NewMemory(nil), nil
	case config.StoreFile:
		return NewFileStore(cfg.Path), nil
	case config.StoreSQLite:
		store, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite settings store: %w", err)
		}
		return store, nil
	case config.StoreRedis:
		return OpenRedis(cfg.RedisAddr, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown settings store %q", cfg.Store)
	}
}
