package store

import (
	"fmt"
	"testing"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModels(t *testing.T) *Models {
	t.Helper()
	return NewModels(newTestDB(t), logger.NewNopLogger())
}

func TestModels_CreateAndGet(t *testing.T) {
	t.Parallel()

	models := newTestModels(t)

	created, err := models.Create(t.Context(), "badges", "B1", []byte(`{"name":"Pro","level":1}`))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "badges", created.Collection)
	assert.Equal(t, "B1", created.ID)
	assert.NotZero(t, created.CreatedAt)

	got, err := models.Get(t.Context(), "badges", "B1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"name":"Pro","level":1}`, string(got.Data))
}

func TestModels_GetMissingReturnsNil(t *testing.T) {
	t.Parallel()

	models := newTestModels(t)

	got, err := models.Get(t.Context(), "badges", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestModels_CreateDuplicateFails(t *testing.T) {
	t.Parallel()

	models := newTestModels(t)

	_, err := models.Create(t.Context(), "badges", "B1", []byte(`{}`))
	require.NoError(t, err)

	_, err = models.Create(t.Context(), "badges", "B1", []byte(`{}`))
	require.Error(t, err)

	// The same id in another collection is a different record.
	_, err = models.Create(t.Context(), "communities", "B1", []byte(`{}`))
	require.NoError(t, err)
}

func TestModels_Update(t *testing.T) {
	t.Parallel()

	models := newTestModels(t)

	_, err := models.Create(t.Context(), "badges", "B1", []byte(`{"level":1}`))
	require.NoError(t, err)

	updated, err := models.Update(t.Context(), "badges", "B1", []byte(`{"level":2}`))
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.JSONEq(t, `{"level":2}`, string(updated.Data))

	missing, err := models.Update(t.Context(), "badges", "nope", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestModels_Delete(t *testing.T) {
	t.Parallel()

	models := newTestModels(t)

	_, err := models.Create(t.Context(), "badges", "B1", []byte(`{"level":1}`))
	require.NoError(t, err)

	deleted, err := models.Delete(t.Context(), "badges", "B1")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.JSONEq(t, `{"level":1}`, string(deleted.Data))

	got, err := models.Get(t.Context(), "badges", "B1")
	require.NoError(t, err)
	assert.Nil(t, got)

	again, err := models.Delete(t.Context(), "badges", "B1")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestModels_Restore(t *testing.T) {
	t.Parallel()

	models := newTestModels(t)

	// Restoring a record that never existed inserts it, the undo path for
	// a deleted record.
	restored, err := models.Restore(t.Context(), "badges", "B1", []byte(`{"level":1}`))
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.JSONEq(t, `{"level":1}`, string(restored.Data))

	// Restoring over an existing record replaces the document, the undo
	// path for an updated record.
	restored, err = models.Restore(t.Context(), "badges", "B1", []byte(`{"level":7}`))
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.JSONEq(t, `{"level":7}`, string(restored.Data))

	_, total, err := models.List(t.Context(), "badges", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestModels_List(t *testing.T) {
	t.Parallel()

	models := newTestModels(t)

	for i := range 5 {
		_, err := models.Create(t.Context(), "badges", fmt.Sprintf("B%d", i), []byte(`{}`))
		require.NoError(t, err)
	}
	_, err := models.Create(t.Context(), "communities", "C1", []byte(`{}`))
	require.NoError(t, err)

	page, total, err := models.List(t.Context(), "badges", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 3)
	assert.Equal(t, "B0", page[0].ID)

	page, total, err = models.List(t.Context(), "badges", 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	page, total, err = models.List(t.Context(), "communities", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "C1", page[0].ID)
}

func TestModels_Collections(t *testing.T) {
	t.Parallel()

	models := newTestModels(t)

	collections, err := models.Collections(t.Context())
	require.NoError(t, err)
	assert.Empty(t, collections)

	_, err = models.Create(t.Context(), "communities", "C1", []byte(`{}`))
	require.NoError(t, err)
	_, err = models.Create(t.Context(), "badges", "B1", []byte(`{}`))
	require.NoError(t, err)
	_, err = models.Create(t.Context(), "badges", "B2", []byte(`{}`))
	require.NoError(t, err)

	collections, err = models.Collections(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"badges", "communities"}, collections)
}
