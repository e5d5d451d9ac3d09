package storage

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore implements Store using an embedded SQLite database.
type SQLiteStore struct {
	sqlStore
}

// SQLiteConfig holds SQLite configuration.
type SQLiteConfig struct {
	Path   string
	Logger *zap.Logger
}

// NewSQLiteStore opens the database at cfg.Path, creating it if needed,
// and applies the schema.
func NewSQLiteStore(cfg *SQLiteConfig) (*SQLiteStore, error) {
	params := url.Values{
		"_busy_timeout": []string{"5000"},
		"_journal_mode": []string{"WAL"},
		"_foreign_keys": []string{"on"},
		"_loc":          []string{"UTC"},
	}
	dsn := fmt.Sprintf("file:%s?%s", cfg.Path, params.Encode())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent loops.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(sqliteSchema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	cfg.Logger.Info("sqlite-store-opened", zap.String("path", cfg.Path))

	return &SQLiteStore{sqlStore{
		db:     db,
		logger: cfg.Logger,
		rebind: rebindNone,
	}}, nil
}
