package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
)

// ProcessedBatch is the ledger row recorded for one accepted batch.
type ProcessedBatch struct {
	BatchID    string `json:"batch_id" meddler:"batch_id"`
	ChainID    uint64 `json:"chain_id" meddler:"chain_id"`
	EventCount int    `json:"event_count" meddler:"event_count"`
	MaxHeight  uint64 `json:"max_height" meddler:"max_block"`
	ReceivedAt int64  `json:"received_at" meddler:"received_at"`
}

// BatchLedger records which batch ids have already been processed so that
// webhook redeliveries are detected instead of applied twice.
type BatchLedger struct {
	db  *sql.DB
	log *logger.Logger
}

// NewBatchLedger creates a ledger on top of an already-migrated database.
func NewBatchLedger(database *sql.DB, log *logger.Logger) *BatchLedger {
	return &BatchLedger{
		db:  database,
		log: log,
	}
}

// MarkProcessed claims the batch id. It returns false when the id was
// already claimed, meaning the batch is a redelivery. Claiming happens
// before processing so two concurrent deliveries of the same batch cannot
// both get through.
func (b *BatchLedger) MarkProcessed(ctx context.Context, batch *ProcessedBatch) (bool, error) {
	if batch.ReceivedAt == 0 {
		batch.ReceivedAt = time.Now().UTC().Unix()
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO processed_batches (batch_id, chain_id, event_count, max_block, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(batch_id) DO NOTHING`,
		batch.BatchID, batch.ChainID, batch.EventCount, batch.MaxHeight, batch.ReceivedAt)
	if err != nil {
		metrics.DBErrorsInc("batches", "insert")
		return false, fmt.Errorf("failed to mark batch %s processed: %w", batch.BatchID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read batch insert result: %w", err)
	}

	if inserted > 0 {
		metrics.DBQueryInc("batches", "insert")
	}

	return inserted > 0, nil
}

// Seen reports whether the batch id has already been processed.
func (b *BatchLedger) Seen(ctx context.Context, batchID string) (bool, error) {
	var count int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_batches WHERE batch_id = ?`, batchID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up batch %s: %w", batchID, err)
	}
	return count > 0, nil
}

// PruneBefore drops ledger rows received before the cutoff. Old rows only
// matter for as long as the upstream indexer may redeliver a batch.
func (b *BatchLedger) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM processed_batches WHERE received_at < ?`, cutoff.UTC().Unix())
	if err != nil {
		metrics.DBErrorsInc("batches", "delete")
		return 0, fmt.Errorf("failed to prune processed batches: %w", err)
	}

	pruned, _ := res.RowsAffected()
	return pruned, nil
}

// Count returns the number of ledger rows currently stored.
func (b *BatchLedger) Count(ctx context.Context) (int, error) {
	var count int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_batches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processed batches: %w", err)
	}
	return count, nil
}
