package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goran-ethernal/ChainReactor/internal/event"
)

// Status tracks a notification through its delivery lifecycle.
type Status string

const (
	// StatusPending marks a record waiting in the queue or between retries.
	StatusPending Status = "pending"
	// StatusSent marks a record whose delivery succeeded.
	StatusSent Status = "sent"
	// StatusFailed marks a record that exhausted its retries.
	StatusFailed Status = "failed"
)

// DeliveryAll fans a record out to every registered channel; delivery
// succeeds only when all of them accept it.
const DeliveryAll = "all"

// Record is one notification owed to a user. It is created pending,
// carries its own retry count, and ends up either sent or failed.
type Record struct {
	ID             uuid.UUID          `json:"id" meddler:"id,uuid"`
	UserID         string             `json:"user_id" meddler:"user_id"`
	BadgeID        string             `json:"badge_id,omitempty" meddler:"badge_id"`
	Kind           event.Kind         `json:"kind" meddler:"kind"`
	Title          string             `json:"title" meddler:"title"`
	Body           string             `json:"body" meddler:"body"`
	DeliveryMethod string             `json:"delivery_method" meddler:"delivery_method"`
	Status         Status             `json:"status" meddler:"status"`
	RetryCount     int                `json:"retry_count" meddler:"retry_count"`
	EnqueuedAt     time.Time          `json:"enqueued_at" meddler:"enqueued_at,utctime"`
	SentAt         *time.Time         `json:"sent_at,omitempty" meddler:"sent_at,utctimez"`
	Event          *event.DomainEvent `json:"event,omitempty" meddler:"-"`
}

// NewRecord builds a pending notification for the event, addressed to the
// event's actor. Title and body are derived from the event kind.
func NewRecord(evt *event.DomainEvent, deliveryMethod string) *Record {
	title, body := composeContent(evt)

	rec := &Record{
		ID:             uuid.New(),
		UserID:         evt.Actor(),
		Kind:           evt.Kind,
		Title:          title,
		Body:           body,
		DeliveryMethod: deliveryMethod,
		Status:         StatusPending,
		EnqueuedAt:     time.Now().UTC(),
		Event:          evt,
	}

	if evt.Badge != nil {
		rec.BadgeID = evt.Badge.BadgeID
	}

	return rec
}

// composeContent derives the user-facing title and body from the event.
// Badge categories select the title through a single switch; the behavior
// is data, not per-category logic. Events missing their payload degrade to
// a generic message.
func composeContent(evt *event.DomainEvent) (title, body string) {
	switch {
	case evt.Kind == event.KindBadgeMinted && evt.Badge != nil:
		title = categoryTitle(evt.Badge.Category)
		body = fmt.Sprintf("You earned the %q badge.", evt.Badge.Name)
	case evt.Kind == event.KindBadgeRevoked && evt.Badge != nil:
		title = "Badge revoked"
		body = fmt.Sprintf("Your badge %s was revoked.", evt.Badge.BadgeID)

		if evt.Badge.Reason != "" {
			body = fmt.Sprintf("Your badge %s was revoked: %s.", evt.Badge.BadgeID, evt.Badge.Reason)
		}
	case evt.Kind == event.KindBadgeMetadataUpdated && evt.Badge != nil:
		title = "Badge updated"
		body = fmt.Sprintf("The details of your badge %s changed.", evt.Badge.BadgeID)
	case evt.Kind == event.KindCommunityCreated && evt.Community != nil:
		title = "Community created"
		body = fmt.Sprintf("Your community %q is now live.", evt.Community.Name)
	default:
		title = "Activity update"
		body = evt.String()
	}

	return title, body
}

func categoryTitle(category string) string {
	switch category {
	case "achievement":
		return "Achievement unlocked"
	case "contribution":
		return "Contribution recognized"
	case "participation":
		return "Participation badge earned"
	case "skill":
		return "Skill badge earned"
	default:
		return "New badge earned"
	}
}
