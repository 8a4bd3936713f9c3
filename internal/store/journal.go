// Package store holds the SQLite-backed persistence for the reaction
// pipeline: the generic model store projections are written into, the
// rollback journal that makes those writes reversible, the notification
// history mirror and the processed-batch ledger used for webhook
// redelivery detection.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/google/uuid"
	"github.com/russross/meddler"
)

const journalTable = "rollback_journal"

// Action names the compensation a journal entry calls for when the block
// that produced it is reorganized away.
type Action string

const (
	// ActionUndoCreate deletes the record the mutation created.
	ActionUndoCreate Action = "undo_create"
	// ActionUndoUpdate restores the captured pre-update document.
	ActionUndoUpdate Action = "undo_update"
	// ActionUndoDelete re-inserts the captured deleted document.
	ActionUndoDelete Action = "undo_delete"
)

// UndoData carries what is needed to reverse one projection mutation.
// Original holds the pre-mutation document for update and delete actions;
// undoing a create only needs the collection and model id.
type UndoData struct {
	Collection string          `json:"collection"`
	ModelID    string          `json:"model_id"`
	Original   json.RawMessage `json:"original,omitempty"`
}

// UndoEntry is one compensating action in the rollback journal. Entries
// are appended as projections mutate the model store and replayed in
// reverse chain order when a reorg invalidates the blocks they came from.
type UndoEntry struct {
	ID        int64          `json:"id" meddler:"id,pk"`
	EventID   uuid.UUID      `json:"event_id" meddler:"event_id,uuid"`
	Kind      event.Kind     `json:"kind" meddler:"kind"`
	ChainID   uint64         `json:"chain_id" meddler:"chain_id"`
	Height    uint64         `json:"height" meddler:"block_number"`
	TxHash    common.Hash    `json:"tx_hash" meddler:"tx_hash,hash"`
	Contract  common.Address `json:"contract" meddler:"contract,address"`
	Action    Action         `json:"action" meddler:"action"`
	Undo      UndoData       `json:"undo" meddler:"payload,json"`
	CreatedAt int64          `json:"created_at" meddler:"created_at"`
}

// Journal is the SQLite-backed rollback journal.
type Journal struct {
	db  *sql.DB
	log *logger.Logger
}

// NewJournal creates a journal on top of an already-migrated database.
func NewJournal(database *sql.DB, log *logger.Logger) *Journal {
	return &Journal{
		db:  database,
		log: log.WithComponent(internalcommon.ComponentJournal),
	}
}

// Append records one undo entry. The entry's ID is assigned by the
// database and written back into the struct.
func (j *Journal) Append(ctx context.Context, entry *UndoEntry) error {
	if err := j.append(j.db, entry); err != nil {
		metrics.DBErrorsInc("journal", "insert")
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	metrics.DBQueryInc("journal", "insert")
	j.updateSizeGauge(ctx)

	return nil
}

// append writes the entry through db, which may be a transaction shared
// with the model mutation the entry compensates.
func (j *Journal) append(db meddler.DB, entry *UndoEntry) error {
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().UTC().Unix()
	}
	return meddler.Insert(db, journalTable, entry)
}

// ScanAbove returns the entries a rollback to rollbackTo must undo: every
// entry above that height, plus any entry whose transaction is in the
// affected set regardless of height. Results are ordered by height
// descending, most recently appended entry first within a height, which is
// the order compensations must apply in.
func (j *Journal) ScanAbove(ctx context.Context, rollbackTo uint64, affected []common.Hash) ([]*UndoEntry, error) {
	query := `SELECT * FROM rollback_journal WHERE block_number > ?`
	args := []interface{}{rollbackTo}

	if len(affected) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(affected)), ", ")
		query += ` OR tx_hash IN (` + placeholders + `)`
		for _, h := range affected {
			args = append(args, h.Hex())
		}
	}

	query += ` ORDER BY block_number DESC, id DESC`

	var entries []*UndoEntry
	if err := meddler.QueryAll(j.db, &entries, query, args...); err != nil {
		metrics.DBErrorsInc("journal", "select")
		return nil, fmt.Errorf("failed to scan journal above height %d: %w", rollbackTo, err)
	}

	return entries, nil
}

// Remove deletes the given entries, typically once their compensations
// have been applied.
func (j *Journal) Remove(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := j.db.ExecContext(ctx, `DELETE FROM rollback_journal WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		metrics.DBErrorsInc("journal", "delete")
		return 0, fmt.Errorf("failed to remove journal entries: %w", err)
	}

	removed, _ := res.RowsAffected()
	j.updateSizeGauge(ctx)

	return removed, nil
}

// PruneThrough deletes every entry at or below the given height. The
// janitor calls this for heights past the finality depth, where a reorg
// can no longer reach.
func (j *Journal) PruneThrough(ctx context.Context, height uint64) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM rollback_journal WHERE block_number <= ?`, height)
	if err != nil {
		metrics.DBErrorsInc("journal", "delete")
		return 0, fmt.Errorf("failed to prune journal through height %d: %w", height, err)
	}

	pruned, _ := res.RowsAffected()
	if pruned > 0 {
		j.log.Debugf("Pruned %d journal entries at or below height %d", pruned, height)
	}
	j.updateSizeGauge(ctx)

	return pruned, nil
}

// List returns one page of journal entries, newest first, plus the total
// entry count.
func (j *Journal) List(ctx context.Context, limit, offset int) ([]*UndoEntry, int, error) {
	var total int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rollback_journal`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count journal entries: %w", err)
	}

	if limit <= 0 {
		limit = defaultPageSize
	}

	var entries []*UndoEntry
	err := meddler.QueryAll(j.db, &entries,
		`SELECT * FROM rollback_journal ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list journal entries: %w", err)
	}

	return entries, total, nil
}

// Count returns the number of entries currently journaled.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var count int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rollback_journal`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return count, nil
}

// MaxHeight returns the highest journaled block height, or zero when the
// journal is empty.
func (j *Journal) MaxHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(block_number), 0) FROM rollback_journal`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("failed to get max journaled height: %w", err)
	}
	return height, nil
}

func (j *Journal) updateSizeGauge(ctx context.Context) {
	count, err := j.Count(ctx)
	if err != nil {
		j.log.Debugf("Failed to refresh journal size gauge: %v", err)
		return
	}
	metrics.JournalSizeSet(count)
}
