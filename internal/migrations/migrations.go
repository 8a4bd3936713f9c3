package migrations

import (
	_ "embed"

	"github.com/goran-ethernal/ChainReactor/internal/db"
)

//go:embed 001_rollback_journal_1.sql
var mig001 string

//go:embed 002_notification_history_1.sql
var mig002 string

//go:embed 003_processed_batches_1.sql
var mig003 string

//go:embed 004_models_1.sql
var mig004 string

func RunMigrations(dbPath string) error {
	migrations := []db.Migration{
		{
			ID:  "001_rollback_journal_1.sql",
			SQL: mig001,
		},
		{
			ID:  "002_notification_history_1.sql",
			SQL: mig002,
		},
		{
			ID:  "003_processed_batches_1.sql",
			SQL: mig003,
		},
		{
			ID:  "004_models_1.sql",
			SQL: mig004,
		},
	}

	return db.RunMigrations(dbPath, migrations)
}
