package notify

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInAppChannel_Deliver(t *testing.T) {
	t.Parallel()

	ch := NewInAppChannel("inapp", 10)

	for _, badgeID := range []string{"B1", "B2"} {
		require.NoError(t, ch.Deliver(t.Context(), NewRecord(badgeEvent("U1", badgeID), "inapp")))
	}
	require.NoError(t, ch.Deliver(t.Context(), NewRecord(badgeEvent("U2", "B9"), "inapp")))

	inbox := ch.Inbox("U1")
	require.Len(t, inbox, 2)

	// Newest first.
	assert.Equal(t, "Achievement unlocked", inbox[0].Title)
	assert.Equal(t, 2, ch.Unread("U1"))
	assert.Equal(t, 1, ch.Unread("U2"))
	assert.Empty(t, ch.Inbox("U3"))
}

func TestInAppChannel_BoundedInbox(t *testing.T) {
	t.Parallel()

	ch := NewInAppChannel("inapp", 2)

	var ids []uuid.UUID

	for _, badgeID := range []string{"B1", "B2", "B3"} {
		rec := NewRecord(badgeEvent("U1", badgeID), "inapp")
		ids = append(ids, rec.ID)
		require.NoError(t, ch.Deliver(t.Context(), rec))
	}

	inbox := ch.Inbox("U1")
	require.Len(t, inbox, 2)

	// The oldest entry fell off.
	assert.Equal(t, ids[2], inbox[0].ID)
	assert.Equal(t, ids[1], inbox[1].ID)
}

func TestInAppChannel_MarkRead(t *testing.T) {
	t.Parallel()

	ch := NewInAppChannel("inapp", 10)

	rec := NewRecord(badgeEvent("U1", "B1"), "inapp")
	require.NoError(t, ch.Deliver(t.Context(), rec))

	assert.True(t, ch.MarkRead("U1", rec.ID))
	assert.Zero(t, ch.Unread("U1"))

	assert.False(t, ch.MarkRead("U1", uuid.New()))
	assert.False(t, ch.MarkRead("U2", rec.ID))
}

func TestInAppChannel_Close(t *testing.T) {
	t.Parallel()

	ch := NewInAppChannel("inapp", 10)
	require.NoError(t, ch.Deliver(t.Context(), NewRecord(badgeEvent("U1", "B1"), "inapp")))

	require.NoError(t, ch.Close())
	assert.Empty(t, ch.Inbox("U1"))
}

func TestInAppChannel_DefaultLimit(t *testing.T) {
	t.Parallel()

	ch := NewInAppChannel("inapp", 0)
	assert.Equal(t, DefaultInboxLimit, ch.limit)
}
