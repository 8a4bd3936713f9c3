// Package reorg rolls the reaction pipeline back when the indexer reports a
// chain reorganization. The coordinator walks the rollback journal from the
// newest entry down, applies the inverse of every mutation above the rollback
// height, drops the cache keys those mutations warmed and announces the
// rollback to connected clients.
package reorg

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/goran-ethernal/ChainReactor/internal/chain"
	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/db"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/goran-ethernal/ChainReactor/internal/store"
)

// State is the coordinator's lifecycle position.
type State string

const (
	// StateIdle means no rollback is being applied.
	StateIdle State = "idle"
	// StateRollingBack means a reorg signal is currently being compensated.
	StateRollingBack State = "rolling_back"
)

// Invalidator drops every cache key tagged above the rollback height or
// tagged with an affected transaction. Satisfied by *invalidation.Invalidator.
type Invalidator interface {
	InvalidateTagged(ctx context.Context, aboveHeight uint64, affected []common.Hash) int
}

// Announcer pushes a rollback summary to connected websocket clients.
// Satisfied by *notify.Hub.
type Announcer interface {
	Broadcast(msgType string, data any) int
}

// Recorder files a notification record describing the rollback. Satisfied
// by *notify.Dispatcher.
type Recorder interface {
	EnqueueRecord(rec *notify.Record) error
}

// Result summarizes one handled rollback. It is broadcast to websocket
// clients and kept as the coordinator's last result.
type Result struct {
	ChainID         uint64    `json:"chain_id"`
	RollbackHeight  uint64    `json:"rollback_height"`
	NewHeight       uint64    `json:"new_height"`
	Depth           uint64    `json:"depth"`
	EntriesScanned  int       `json:"entries_scanned"`
	EntriesUndone   int       `json:"entries_undone"`
	UndoFailures    int       `json:"undo_failures"`
	KeysInvalidated int       `json:"keys_invalidated"`
	StartedAt       time.Time `json:"started_at"`
	DurationMs      float64   `json:"duration_ms"`
}

// Stats is a snapshot of the coordinator's lifetime counters.
type Stats struct {
	State          State   `json:"state"`
	ReorgsHandled  uint64  `json:"reorgs_handled"`
	EntriesUndone  uint64  `json:"entries_undone"`
	UndoFailures   uint64  `json:"undo_failures"`
	ReplaysSkipped uint64  `json:"replays_skipped"`
	LastResult     *Result `json:"last_result,omitempty"`
}

// Coordinator applies compensating rollbacks. Only one rollback runs at a
// time; signals arriving mid-rollback are rejected so the caller can drop
// them and rely on the indexer redelivering.
type Coordinator struct {
	journal     *store.Journal
	models      *store.Models
	invalidator Invalidator
	maintenance db.Maintenance
	log         *logger.Logger

	mu             sync.Mutex
	state          State
	announcer      Announcer
	recorder       Recorder
	reorgsHandled  uint64
	entriesUndone  uint64
	undoFailures   uint64
	replaysSkipped uint64
	lastResult     *Result
}

// NewCoordinator creates a reorg coordinator over the rollback journal and
// the record store. A nil maintenance coordinator disables maintenance
// exclusion.
func NewCoordinator(
	journal *store.Journal,
	models *store.Models,
	invalidator Invalidator,
	maintenance db.Maintenance,
	log *logger.Logger,
) *Coordinator {
	if maintenance == nil {
		maintenance = &db.NoOpMaintenance{}
	}

	c := &Coordinator{
		journal:     journal,
		models:      models,
		invalidator: invalidator,
		maintenance: maintenance,
		log:         log.WithComponent(internalcommon.ComponentReorgCoordinator),
		state:       StateIdle,
	}

	metrics.ComponentHealthSet(internalcommon.ComponentReorgCoordinator, true)

	c.log.Info("reorg coordinator initialized")

	return c
}

// SetAnnouncer installs the websocket hub used to announce rollbacks.
func (c *Coordinator) SetAnnouncer(a Announcer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.announcer = a
}

// SetRecorder installs the dispatcher used to file reorg notifications.
func (c *Coordinator) SetRecorder(r Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recorder = r
}

// State reports whether a rollback is currently being applied.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Stats returns a snapshot of the coordinator's lifetime counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		State:          c.state,
		ReorgsHandled:  c.reorgsHandled,
		EntriesUndone:  c.entriesUndone,
		UndoFailures:   c.undoFailures,
		ReplaysSkipped: c.replaysSkipped,
	}

	if c.lastResult != nil {
		last := *c.lastResult
		stats.LastResult = &last
	}

	return stats
}

// HandleReorg compensates every journaled mutation above the signal's
// rollback height or touching an affected transaction. It follows these
// steps:
// 1. Scan the journal newest-first for entries in rollback scope
// 2. Apply the inverse of each mutation and clear the applied entries
// 3. Invalidate every cache key tagged into the rolled-back range
// 4. Announce the rollback and file a reorg notification
// Compensation is best effort: a failing entry is logged, counted and
// skipped so one poisoned record cannot wedge the remaining undos. Entries
// at or below the rollback height stay journaled.
func (c *Coordinator) HandleReorg(ctx context.Context, sig *chain.ReorgSignal) (*Result, error) {
	if err := c.begin(sig.RollbackHeight); err != nil {
		return nil, err
	}
	defer c.finish()

	// Hold the operation lock so database maintenance cannot run mid-rollback.
	unlock := c.maintenance.AcquireOperationLock()
	defer unlock()

	start := time.Now().UTC()

	c.log.Infow("rollback started",
		"chain_id", sig.ChainID,
		"rollback_height", sig.RollbackHeight,
		"new_height", sig.NewHeight,
		"affected_txs", len(sig.AffectedTxs),
	)

	entries, err := c.journal.ScanAbove(ctx, sig.RollbackHeight, sig.AffectedTxs)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rollback journal: %w", err)
	}

	result := &Result{
		ChainID:        sig.ChainID,
		RollbackHeight: sig.RollbackHeight,
		NewHeight:      sig.NewHeight,
		Depth:          depth(sig),
		EntriesScanned: len(entries),
		StartedAt:      start,
	}

	undone := make([]int64, 0, len(entries))

	for _, entry := range entries {
		if err := c.undo(ctx, entry); err != nil {
			result.UndoFailures++
			c.log.Errorw("failed to undo journal entry",
				"entry_id", entry.ID,
				"action", entry.Action,
				"collection", entry.Undo.Collection,
				"model_id", entry.Undo.ModelID,
				"block_number", entry.Height,
				"error", err,
			)

			continue
		}

		undone = append(undone, entry.ID)
	}

	result.EntriesUndone = len(undone)

	if len(undone) > 0 {
		if _, err := c.journal.Remove(ctx, undone); err != nil {
			c.log.Errorw("failed to clear undone journal entries", "error", err)
		}
	}

	result.KeysInvalidated = c.invalidator.InvalidateTagged(ctx, sig.RollbackHeight, sig.AffectedTxs)

	// The new canonical branch is not replayed; projections above the
	// rollback height repopulate as fresh batches arrive.
	replaySkippedLog()
	c.log.Warnw("canonical branch not replayed",
		"rollback_height", sig.RollbackHeight,
		"new_height", sig.NewHeight,
	)

	duration := time.Since(start)
	result.DurationMs = float64(duration) / float64(time.Millisecond)

	c.announce(result)
	c.record(result)

	metrics.ReorgHandled(strconv.FormatUint(sig.ChainID, 10), result.EntriesUndone, result.UndoFailures, duration)
	reorgHandledLog(result.Depth)

	c.mu.Lock()
	c.reorgsHandled++
	c.entriesUndone += uint64(result.EntriesUndone)
	c.undoFailures += uint64(result.UndoFailures)
	c.replaysSkipped++
	c.lastResult = result
	c.mu.Unlock()

	c.log.Infow("rollback complete",
		"chain_id", sig.ChainID,
		"rollback_height", sig.RollbackHeight,
		"entries_undone", result.EntriesUndone,
		"undo_failures", result.UndoFailures,
		"keys_invalidated", result.KeysInvalidated,
		"duration_ms", result.DurationMs,
	)

	return result, nil
}

// begin moves the coordinator to RollingBack, rejecting concurrent signals.
func (c *Coordinator) begin(rollbackHeight uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRollingBack {
		return NewRollbackInProgressError(rollbackHeight)
	}

	c.state = StateRollingBack

	return nil
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

// undo applies the inverse of one journaled mutation. A created record is
// deleted; an updated or deleted record is put back exactly as captured.
func (c *Coordinator) undo(ctx context.Context, entry *store.UndoEntry) error {
	switch entry.Action {
	case store.ActionUndoCreate:
		_, err := c.models.Delete(ctx, entry.Undo.Collection, entry.Undo.ModelID)

		return err

	case store.ActionUndoUpdate, store.ActionUndoDelete:
		if len(entry.Undo.Original) == 0 {
			return fmt.Errorf("journal entry %d carries no captured document", entry.ID)
		}

		_, err := c.models.Restore(ctx, entry.Undo.Collection, entry.Undo.ModelID, entry.Undo.Original)

		return err

	default:
		return fmt.Errorf("unknown journal action %q", entry.Action)
	}
}

// announce pushes the rollback summary to websocket clients. Best effort:
// without an installed announcer nothing happens.
func (c *Coordinator) announce(result *Result) {
	c.mu.Lock()
	announcer := c.announcer
	c.mu.Unlock()

	if announcer == nil {
		return
	}

	sent := announcer.Broadcast("reorg", result)
	c.log.Debugw("rollback announced", "clients", sent)
}

// record files a reorg notification through the regular dispatch pipeline
// so the rollback shows up in the notification history and on every
// registered channel. Best effort.
func (c *Coordinator) record(result *Result) {
	c.mu.Lock()
	recorder := c.recorder
	c.mu.Unlock()

	if recorder == nil {
		return
	}

	rec := &notify.Record{
		ID:     uuid.New(),
		UserID: "system",
		Kind:   "reorg",
		Title:  "Chain reorganization",
		Body: fmt.Sprintf("Chain %d rolled back to block %d; %d records compensated.",
			result.ChainID, result.RollbackHeight, result.EntriesUndone),
		DeliveryMethod: notify.DeliveryAll,
	}

	if err := recorder.EnqueueRecord(rec); err != nil {
		c.log.Warnw("failed to enqueue reorg notification", "error", err)
	}
}

// depth is the span from the rollback point to the tip of the new branch.
func depth(sig *chain.ReorgSignal) uint64 {
	if sig.NewHeight <= sig.RollbackHeight {
		return 0
	}

	return sig.NewHeight - sig.RollbackHeight
}
