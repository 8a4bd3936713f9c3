package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Vacuum reclaims free pages in the given database. SQLite refuses to
// vacuum while another connection holds an open transaction, which
// surfaces as a locked database rather than a wait.
func Vacuum(db *sql.DB) error {
	if _, err := db.Exec("VACUUM"); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return errors.New("cannot vacuum: database is locked (retry later)")
		}
		return fmt.Errorf("vacuum failed: %w", err)
	}

	VacuumCompleted()

	return nil
}
