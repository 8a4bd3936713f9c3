package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/russross/meddler"
)

const (
	modelsTable     = "models"
	defaultPageSize = 50
)

// Model is one projected domain record, stored as a JSON document under a
// named collection such as "badges" or "communities". The store does not
// interpret the document; projection handlers own its shape.
type Model struct {
	Collection string          `json:"collection" meddler:"collection"`
	ID         string          `json:"id" meddler:"id"`
	Data       json.RawMessage `json:"data" meddler:"data,json"`
	CreatedAt  int64           `json:"created_at" meddler:"created_at"`
	UpdatedAt  int64           `json:"updated_at" meddler:"updated_at"`
}

// Models is the generic model store reaction handlers project domain
// records into. Lookups that miss return (nil, nil) so callers can tell
// absence apart from storage failure.
type Models struct {
	db  *sql.DB
	log *logger.Logger
}

// NewModels creates a model store on top of an already-migrated database.
func NewModels(database *sql.DB, log *logger.Logger) *Models {
	return &Models{
		db:  database,
		log: log,
	}
}

// Create inserts a new document under collection/id and returns the stored
// record. Creating an id that already exists is a storage error.
func (m *Models) Create(ctx context.Context, collection, id string, data json.RawMessage) (*Model, error) {
	now := time.Now().UTC().Unix()
	model := &Model{
		Collection: collection,
		ID:         id,
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := meddler.Insert(m.db, modelsTable, model); err != nil {
		metrics.DBErrorsInc("models", "insert")
		return nil, fmt.Errorf("failed to create model %s/%s: %w", collection, id, err)
	}

	metrics.DBQueryInc("models", "insert")

	return model, nil
}

// Get returns the document stored under collection/id, or (nil, nil) when
// there is none.
func (m *Models) Get(ctx context.Context, collection, id string) (*Model, error) {
	var model Model
	err := meddler.QueryRow(m.db, &model,
		`SELECT * FROM models WHERE collection = ? AND id = ?`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBErrorsInc("models", "select")
		return nil, fmt.Errorf("failed to get model %s/%s: %w", collection, id, err)
	}

	return &model, nil
}

// Update replaces the document under collection/id and returns the updated
// record, or (nil, nil) when no such record exists.
func (m *Models) Update(ctx context.Context, collection, id string, data json.RawMessage) (*Model, error) {
	res, err := m.db.ExecContext(ctx,
		`UPDATE models SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(data), time.Now().UTC().Unix(), collection, id)
	if err != nil {
		metrics.DBErrorsInc("models", "update")
		return nil, fmt.Errorf("failed to update model %s/%s: %w", collection, id, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, nil
	}

	metrics.DBQueryInc("models", "update")

	return m.Get(ctx, collection, id)
}

// Delete removes collection/id and returns the record as it was stored, or
// (nil, nil) when nothing was stored under that id.
func (m *Models) Delete(ctx context.Context, collection, id string) (*Model, error) {
	model, err := m.Get(ctx, collection, id)
	if err != nil || model == nil {
		return nil, err
	}

	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM models WHERE collection = ? AND id = ?`, collection, id); err != nil {
		metrics.DBErrorsInc("models", "delete")
		return nil, fmt.Errorf("failed to delete model %s/%s: %w", collection, id, err)
	}

	metrics.DBQueryInc("models", "delete")

	return model, nil
}

// Restore writes the document under collection/id whether or not it
// currently exists. Reorg compensation uses it to put back updated or
// deleted records exactly as they were.
func (m *Models) Restore(ctx context.Context, collection, id string, data json.RawMessage) (*Model, error) {
	now := time.Now().UTC().Unix()

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO models (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(data), now, now)
	if err != nil {
		metrics.DBErrorsInc("models", "upsert")
		return nil, fmt.Errorf("failed to restore model %s/%s: %w", collection, id, err)
	}

	metrics.DBQueryInc("models", "upsert")

	return m.Get(ctx, collection, id)
}

// List returns one page of a collection ordered by id, plus the total
// record count for the collection.
func (m *Models) List(ctx context.Context, collection string, limit, offset int) ([]*Model, int, error) {
	var total int
	if err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM models WHERE collection = ?`, collection).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count models in %s: %w", collection, err)
	}

	if limit <= 0 {
		limit = defaultPageSize
	}

	var models []*Model
	err := meddler.QueryAll(m.db, &models,
		`SELECT * FROM models WHERE collection = ? ORDER BY id ASC LIMIT ? OFFSET ?`, collection, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list models in %s: %w", collection, err)
	}

	return models, total, nil
}

// Collections returns the distinct collection names with at least one
// record, in alphabetical order.
func (m *Models) Collections(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT DISTINCT collection FROM models ORDER BY collection ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var collections []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection name: %w", err)
		}
		collections = append(collections, name)
	}

	return collections, rows.Err()
}
