package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/google/uuid"
	"github.com/russross/meddler"
)

const historyTable = "notification_history"

// NotificationLog mirrors terminal notification records into SQLite so
// delivery history survives restarts. It satisfies notify.HistorySink.
type NotificationLog struct {
	db  *sql.DB
	log *logger.Logger
}

// NewNotificationLog creates a notification mirror on top of an
// already-migrated database.
func NewNotificationLog(database *sql.DB, log *logger.Logger) *NotificationLog {
	return &NotificationLog{
		db:  database,
		log: log,
	}
}

// SaveNotification upserts one terminal record. The dispatcher hands each
// record over exactly once, but redeliveries after a crash replay are
// tolerated by replacing the stored row.
func (n *NotificationLog) SaveNotification(ctx context.Context, rec *notify.Record) error {
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			n.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	if _, err := tx.Exec(`DELETE FROM notification_history WHERE id = ?`, rec.ID.String()); err != nil {
		metrics.DBErrorsInc("notifications", "delete")
		return fmt.Errorf("failed to clear notification %s: %w", rec.ID, err)
	}

	if err := meddler.Insert(tx, historyTable, rec); err != nil {
		metrics.DBErrorsInc("notifications", "insert")
		return fmt.Errorf("failed to save notification %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.DBQueryInc("notifications", "insert")

	return nil
}

// Get returns the stored record with the given id, or (nil, nil) when
// there is none.
func (n *NotificationLog) Get(ctx context.Context, id uuid.UUID) (*notify.Record, error) {
	var rec notify.Record
	err := meddler.QueryRow(n.db, &rec, `SELECT * FROM notification_history WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorsInc("notifications", "select")
		return nil, fmt.Errorf("failed to get notification %s: %w", id, err)
	}

	return &rec, nil
}

// History returns one page of stored notifications, newest first, plus the
// total count matching the filter. An empty userID matches every user and
// an empty status matches every status.
func (n *NotificationLog) History(
	ctx context.Context,
	userID string,
	status notify.Status,
	limit, offset int,
) ([]*notify.Record, int, error) {
	where := ""
	args := []interface{}{}
	var conditions []string

	if userID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, userID)
	}
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(status))
	}
	if len(conditions) > 0 {
		where = " WHERE "
		for i, cond := range conditions {
			if i > 0 {
				where += " AND "
			}
			where += cond
		}
	}

	var total int
	if err := n.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_history`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	args = append(args, limit, offset)

	var records []*notify.Record
	err := meddler.QueryAll(n.db, &records,
		`SELECT * FROM notification_history`+where+` ORDER BY enqueued_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		metrics.DBErrorsInc("notifications", "select")
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	return records, total, nil
}
