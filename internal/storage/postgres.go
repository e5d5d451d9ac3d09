package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	sqlStore
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

const pingAttempts = 5

// NewPostgresStore connects to PostgreSQL, retrying the initial ping with
// exponential backoff, and applies the schema.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}

		if b.Attempt() >= pingAttempts-1 {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		delay := b.Duration()
		cfg.Logger.Warn("postgres-ping-failed",
			zap.Error(err),
			zap.Duration("retry-in", delay))

		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	_, err = db.ExecContext(ctx, postgresSchema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	cfg.Logger.Info("postgres-store-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStore{sqlStore{
		db:     db,
		logger: cfg.Logger,
		rebind: rebindDollar,
	}}, nil
}
