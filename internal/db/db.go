package db

import (
	"database/sql"
	"fmt"

	"github.com/goran-ethernal/ChainReactor/pkg/config"
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB opens the database at dbPath with the settings the reactor
// relies on everywhere: WAL journaling, immediate write transactions and a
// busy timeout generous enough for compensation batches.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	cfg := config.DatabaseConfig{
		Path:              dbPath,
		BusyTimeout:       30000,
		EnableForeignKeys: true,
	}
	cfg.ApplyDefaults()

	return NewSQLiteDBFromConfig(cfg)
}

// NewSQLiteDBFromConfig opens the database described by cfg and applies
// its pool limits and pragmas.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	foreignKeys := "off"
	if cfg.EnableForeignKeys {
		foreignKeys = "on"
	}

	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=%s&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path, foreignKeys, cfg.JournalMode, cfg.BusyTimeout,
	)

	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.MaxOpenConnections)
	database.SetMaxIdleConns(cfg.MaxIdleConnections)

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	} {
		if _, err := database.Exec(pragma); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return database, nil
}
