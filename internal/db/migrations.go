package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migration is one embedded schema migration. SQL holds both directions,
// separated by the standard sql-migrate markers.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrations opens the database at dbPath, applies every pending
// migration upward and closes the connection again.
func RunMigrations(dbPath string, migrations []Migration) error {
	database, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer database.Close()

	return RunMigrationsDB(logger.GetDefaultLogger(), database, migrations)
}

// RunMigrationsDB applies every pending migration upward on an already
// open database.
func RunMigrationsDB(log *logger.Logger, database *sql.DB, migrations []Migration) error {
	source := &migrate.MemoryMigrationSource{}

	for _, m := range migrations {
		up, down, err := splitDirections(m.SQL)
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.ID, err)
		}

		source.Migrations = append(source.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{up},
			Down: []string{down},
		})
	}

	applied, err := migrate.Exec(database, "sqlite3", source, migrate.Up)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if applied > 0 {
		log.Infof("Applied %d schema migrations", applied)
	}

	return nil
}

// splitDirections separates one migration file into its Up and Down
// sections. The Down section precedes the Up marker in our files.
func splitDirections(sql string) (up, down string, err error) {
	parts := strings.Split(sql, upMarker)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("missing %q separator", upMarker)
	}

	down = parts[0]
	if idx := strings.Index(down, downMarker); idx != -1 {
		down = down[idx+len(downMarker):]
	}

	return strings.TrimSpace(parts[1]), strings.TrimSpace(down), nil
}
