package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goran-ethernal/ChainReactor/internal/event"
)

// DefaultInboxLimit bounds the per-user inbox when no limit is configured.
const DefaultInboxLimit = 100

// InboxEntry is one notification as it appears in a user's inbox.
type InboxEntry struct {
	ID        uuid.UUID  `json:"id"`
	Kind      event.Kind `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
}

// InAppChannel keeps notifications in per-user in-memory inboxes, newest
// first. Each inbox is bounded; old entries fall off the end.
type InAppChannel struct {
	name  string
	limit int

	mu      sync.RWMutex
	inboxes map[string][]InboxEntry
}

// NewInAppChannel builds an in-app inbox channel. A non-positive limit
// falls back to DefaultInboxLimit.
func NewInAppChannel(name string, limit int) *InAppChannel {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}

	return &InAppChannel{
		name:    name,
		limit:   limit,
		inboxes: make(map[string][]InboxEntry),
	}
}

func (c *InAppChannel) Name() string {
	return c.name
}

// Deliver prepends the record to the recipient's inbox.
func (c *InAppChannel) Deliver(_ context.Context, rec *Record) error {
	entry := InboxEntry{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Title:     rec.Title,
		Body:      rec.Body,
		CreatedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	inbox := append([]InboxEntry{entry}, c.inboxes[rec.UserID]...)
	if len(inbox) > c.limit {
		inbox = inbox[:c.limit]
	}

	c.inboxes[rec.UserID] = inbox

	return nil
}

// Inbox returns a copy of the user's inbox, newest first.
func (c *InAppChannel) Inbox(userID string) []InboxEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inbox := make([]InboxEntry, len(c.inboxes[userID]))
	copy(inbox, c.inboxes[userID])

	return inbox
}

// Unread counts the user's unread entries.
func (c *InAppChannel) Unread(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	unread := 0

	for _, entry := range c.inboxes[userID] {
		if !entry.Read {
			unread++
		}
	}

	return unread
}

// MarkRead flags one entry as read, reporting whether it was found.
func (c *InAppChannel) MarkRead(userID string, id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	inbox := c.inboxes[userID]

	for i := range inbox {
		if inbox[i].ID == id {
			inbox[i].Read = true

			return true
		}
	}

	return false
}

// Close drops every inbox.
func (c *InAppChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inboxes = make(map[string][]InboxEntry)

	return nil
}
