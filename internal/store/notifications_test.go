package store

import (
	"testing"
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotificationLog(t *testing.T) *NotificationLog {
	t.Helper()
	return NewNotificationLog(newTestDB(t), logger.NewNopLogger())
}

func sentRecord(userID string, enqueuedAt time.Time) *notify.Record {
	sentAt := enqueuedAt.Add(50 * time.Millisecond)
	return &notify.Record{
		ID:             uuid.New(),
		UserID:         userID,
		BadgeID:        "B1",
		Kind:           event.KindBadgeMinted,
		Title:          "Achievement unlocked",
		Body:           `You earned the "Pro" badge.`,
		DeliveryMethod: "inapp",
		Status:         notify.StatusSent,
		EnqueuedAt:     enqueuedAt,
		SentAt:         &sentAt,
	}
}

func TestNotificationLog_SaveAndGet(t *testing.T) {
	t.Parallel()

	nlog := newTestNotificationLog(t)

	rec := sentRecord("U1", time.Now().UTC())
	require.NoError(t, nlog.SaveNotification(t.Context(), rec))

	got, err := nlog.Get(t.Context(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "U1", got.UserID)
	assert.Equal(t, "B1", got.BadgeID)
	assert.Equal(t, event.KindBadgeMinted, got.Kind)
	assert.Equal(t, "Achievement unlocked", got.Title)
	assert.Equal(t, `You earned the "Pro" badge.`, got.Body)
	assert.Equal(t, "inapp", got.DeliveryMethod)
	assert.Equal(t, notify.StatusSent, got.Status)
	assert.Zero(t, got.RetryCount)
	assert.WithinDuration(t, rec.EnqueuedAt, got.EnqueuedAt, time.Second)
	require.NotNil(t, got.SentAt)
	assert.WithinDuration(t, *rec.SentAt, *got.SentAt, time.Second)
}

func TestNotificationLog_GetMissingReturnsNil(t *testing.T) {
	t.Parallel()

	nlog := newTestNotificationLog(t)

	got, err := nlog.Get(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNotificationLog_SaveReplacesExisting(t *testing.T) {
	t.Parallel()

	nlog := newTestNotificationLog(t)

	rec := sentRecord("U1", time.Now().UTC())
	rec.Status = notify.StatusPending
	rec.SentAt = nil
	require.NoError(t, nlog.SaveNotification(t.Context(), rec))

	sentAt := time.Now().UTC()
	rec.Status = notify.StatusSent
	rec.SentAt = &sentAt
	require.NoError(t, nlog.SaveNotification(t.Context(), rec))

	got, err := nlog.Get(t.Context(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, notify.StatusSent, got.Status)

	_, total, err := nlog.History(t.Context(), "", "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestNotificationLog_FailedRecordKeepsNilSentAt(t *testing.T) {
	t.Parallel()

	nlog := newTestNotificationLog(t)

	rec := sentRecord("U1", time.Now().UTC())
	rec.Status = notify.StatusFailed
	rec.RetryCount = 3
	rec.SentAt = nil
	require.NoError(t, nlog.SaveNotification(t.Context(), rec))

	got, err := nlog.Get(t.Context(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, notify.StatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Nil(t, got.SentAt)
}

func TestNotificationLog_History(t *testing.T) {
	t.Parallel()

	nlog := newTestNotificationLog(t)

	now := time.Now().UTC()
	oldest := sentRecord("U1", now.Add(-2*time.Hour))
	middle := sentRecord("U2", now.Add(-1*time.Hour))
	newest := sentRecord("U1", now)
	newest.Status = notify.StatusFailed
	newest.SentAt = nil

	for _, rec := range []*notify.Record{oldest, middle, newest} {
		require.NoError(t, nlog.SaveNotification(t.Context(), rec))
	}

	// Unfiltered, newest first.
	records, total, err := nlog.History(t.Context(), "", "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 3)
	assert.Equal(t, newest.ID, records[0].ID)
	assert.Equal(t, middle.ID, records[1].ID)
	assert.Equal(t, oldest.ID, records[2].ID)

	// Filtered by user.
	records, total, err = nlog.History(t.Context(), "U1", "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)
	assert.Equal(t, newest.ID, records[0].ID)
	assert.Equal(t, oldest.ID, records[1].ID)

	// Filtered by status.
	records, total, err = nlog.History(t.Context(), "", notify.StatusFailed, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, newest.ID, records[0].ID)

	// Both filters plus paging.
	records, total, err = nlog.History(t.Context(), "U1", notify.StatusSent, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, oldest.ID, records[0].ID)

	records, _, err = nlog.History(t.Context(), "U1", "", 1, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, oldest.ID, records[0].ID)
}
