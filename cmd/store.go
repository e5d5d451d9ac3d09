package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/storage"
	"github.com/parlaytech/updown-arb/pkg/config"
)

// openStore opens the store the engine writes to, for the read-mostly
// operational commands. The memory backend has nothing to show outside a
// running engine, so it is rejected here.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StorageMode {
	case "postgres":
		return storage.NewPostgresStore(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
	case "memory":
		return nil, fmt.Errorf("STORAGE_MODE=memory holds no state outside a running engine")
	default:
		return storage.NewSQLiteStore(&storage.SQLiteConfig{
			Path:   cfg.SQLitePath,
			Logger: logger,
		})
	}
}
