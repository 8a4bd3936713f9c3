package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/russross/meddler"
)

// Projection applies chain-derived model mutations and journals their
// compensations in one sqlite transaction, so a mutation can never land
// without the undo entry that makes it reversible.
type Projection struct {
	db      *sql.DB
	models  *Models
	journal *Journal
	log     *logger.Logger
}

// NewProjection creates a projection writer over the shared database.
func NewProjection(database *sql.DB, models *Models, journal *Journal, log *logger.Logger) *Projection {
	return &Projection{
		db:      database,
		models:  models,
		journal: journal,
		log:     log,
	}
}

// Models returns the underlying model store, used directly by reorg
// compensation. Compensations are not journaled.
func (p *Projection) Models() *Models {
	return p.models
}

// Journal returns the underlying rollback journal.
func (p *Projection) Journal() *Journal {
	return p.journal
}

// CreateModel inserts a new document and journals an undo_create entry.
func (p *Projection) CreateModel(
	ctx context.Context,
	evt *event.DomainEvent,
	collection, id string,
	data json.RawMessage,
) (*Model, error) {
	now := time.Now().UTC().Unix()
	model := &Model{
		Collection: collection,
		ID:         id,
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := p.inTx(ctx, func(tx *sql.Tx) error {
		if err := meddler.Insert(tx, modelsTable, model); err != nil {
			return fmt.Errorf("failed to create model %s/%s: %w", collection, id, err)
		}
		return p.journal.append(tx, undoEntry(evt, ActionUndoCreate, collection, id, nil))
	})
	if err != nil {
		metrics.DBErrorsInc("models", "insert")
		return nil, err
	}

	p.journal.updateSizeGauge(ctx)

	return model, nil
}

// UpdateModel replaces the document under collection/id and journals an
// undo_update entry holding the pre-update document. Returns (nil, nil)
// when no such record exists; nothing is journaled in that case.
func (p *Projection) UpdateModel(
	ctx context.Context,
	evt *event.DomainEvent,
	collection, id string,
	data json.RawMessage,
) (*Model, error) {
	var updated *Model

	err := p.inTx(ctx, func(tx *sql.Tx) error {
		prior, err := getModel(tx, collection, id)
		if err != nil {
			return err
		}
		if prior == nil {
			return nil
		}

		now := time.Now().UTC().Unix()
		if _, err := tx.Exec(
			`UPDATE models SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			string(data), now, collection, id); err != nil {
			return fmt.Errorf("failed to update model %s/%s: %w", collection, id, err)
		}

		if err := p.journal.append(tx, undoEntry(evt, ActionUndoUpdate, collection, id, prior.Data)); err != nil {
			return err
		}

		updated = &Model{
			Collection: collection,
			ID:         id,
			Data:       data,
			CreatedAt:  prior.CreatedAt,
			UpdatedAt:  now,
		}
		return nil
	})
	if err != nil {
		metrics.DBErrorsInc("models", "update")
		return nil, err
	}
	if updated == nil {
		return nil, nil
	}

	p.journal.updateSizeGauge(ctx)

	return updated, nil
}

// DeleteModel removes the document under collection/id and journals an
// undo_delete entry holding it. Returns (nil, nil) when no such record
// exists; nothing is journaled in that case.
func (p *Projection) DeleteModel(
	ctx context.Context,
	evt *event.DomainEvent,
	collection, id string,
) (*Model, error) {
	var deleted *Model

	err := p.inTx(ctx, func(tx *sql.Tx) error {
		prior, err := getModel(tx, collection, id)
		if err != nil {
			return err
		}
		if prior == nil {
			return nil
		}

		if _, err := tx.Exec(
			`DELETE FROM models WHERE collection = ? AND id = ?`, collection, id); err != nil {
			return fmt.Errorf("failed to delete model %s/%s: %w", collection, id, err)
		}

		if err := p.journal.append(tx, undoEntry(evt, ActionUndoDelete, collection, id, prior.Data)); err != nil {
			return err
		}

		deleted = prior
		return nil
	})
	if err != nil {
		metrics.DBErrorsInc("models", "delete")
		return nil, err
	}
	if deleted == nil {
		return nil, nil
	}

	p.journal.updateSizeGauge(ctx)

	return deleted, nil
}

func (p *Projection) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			p.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func getModel(tx *sql.Tx, collection, id string) (*Model, error) {
	var model Model
	err := meddler.QueryRow(tx, &model,
		`SELECT * FROM models WHERE collection = ? AND id = ?`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model %s/%s: %w", collection, id, err)
	}
	return &model, nil
}

func undoEntry(evt *event.DomainEvent, action Action, collection, id string, original json.RawMessage) *UndoEntry {
	return &UndoEntry{
		EventID:  evt.ID,
		Kind:     evt.Kind,
		ChainID:  evt.ChainID,
		Height:   evt.Height,
		TxHash:   evt.TxHash,
		Contract: evt.Contract,
		Action:   action,
		Undo: UndoData{
			Collection: collection,
			ModelID:    id,
			Original:   original,
		},
	}
}
