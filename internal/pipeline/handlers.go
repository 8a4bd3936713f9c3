package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/invalidation"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/goran-ethernal/ChainReactor/internal/routing"
	"github.com/goran-ethernal/ChainReactor/internal/store"
)

// Collections the projection handler writes into.
const (
	BadgeCollection     = "badges"
	CommunityCollection = "communities"
)

// BadgeDoc is the persisted projection of one badge.
type BadgeDoc struct {
	BadgeID     string `json:"badge_id"`
	Owner       string `json:"owner"`
	Name        string `json:"name,omitempty"`
	Category    string `json:"category,omitempty"`
	Level       int    `json:"level,omitempty"`
	MetadataURI string `json:"metadata_uri,omitempty"`
	MintedAt    uint64 `json:"minted_at_height"`
}

// CommunityDoc is the persisted projection of one community.
type CommunityDoc struct {
	CommunityID string `json:"community_id"`
	Name        string `json:"name,omitempty"`
	Creator     string `json:"creator"`
	CreatedAt   uint64 `json:"created_at_height"`
}

// InvalidationHandler builds the routing handler that drops cache entries
// the event makes stale. The event's exact keys are re-tagged with its
// block and transaction afterwards, so a reorg that orphans the event can
// drop whatever the collaborator re-cached under them.
func InvalidationHandler(inv *invalidation.Invalidator) routing.Handler {
	return func(ctx context.Context, evt *event.DomainEvent) error {
		inv.InvalidateForEvent(ctx, evt)

		if rule, ok := inv.Rules().Lookup(evt.Kind); ok {
			keys, _ := rule.Resolve(evt)
			for _, key := range keys {
				inv.Tag(key, evt.Height, evt.TxHash)
			}
		}

		return nil
	}
}

// NotificationHandler builds the routing handler that files a notification
// for the event's actor over the given delivery method.
func NotificationHandler(dispatcher *notify.Dispatcher, method string) routing.Handler {
	if method == "" {
		method = notify.DeliveryAll
	}

	return func(_ context.Context, evt *event.DomainEvent) error {
		if evt.Actor() == "" {
			return nil
		}

		if _, err := dispatcher.Enqueue(evt, method); err != nil {
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}

		return nil
	}
}

// ProjectionHandler builds the routing handler that maintains the badge and
// community collections. Every write journals its compensation, which is
// what makes reorg rollback possible.
func ProjectionHandler(projection *store.Projection, log *logger.Logger) routing.Handler {
	return func(ctx context.Context, evt *event.DomainEvent) error {
		switch evt.Kind {
		case event.KindBadgeMinted:
			return projectMint(ctx, projection, evt)
		case event.KindBadgeRevoked:
			return projectRevoke(ctx, projection, evt)
		case event.KindBadgeMetadataUpdated:
			return projectMetadataUpdate(ctx, projection, evt, log)
		case event.KindCommunityCreated:
			return projectCommunity(ctx, projection, evt)
		default:
			return nil
		}
	}
}

func projectMint(ctx context.Context, projection *store.Projection, evt *event.DomainEvent) error {
	if evt.Badge == nil {
		return nil
	}

	doc, err := json.Marshal(BadgeDoc{
		BadgeID:     evt.Badge.BadgeID,
		Owner:       evt.Badge.Recipient,
		Name:        evt.Badge.Name,
		Category:    evt.Badge.Category,
		Level:       evt.Badge.Level,
		MetadataURI: evt.Badge.MetadataURI,
		MintedAt:    evt.Height,
	})
	if err != nil {
		return fmt.Errorf("failed to encode badge document: %w", err)
	}

	if _, err := projection.CreateModel(ctx, evt, BadgeCollection, evt.Badge.BadgeID, doc); err != nil {
		return fmt.Errorf("failed to project badge mint: %w", err)
	}

	return nil
}

func projectRevoke(ctx context.Context, projection *store.Projection, evt *event.DomainEvent) error {
	if evt.Badge == nil {
		return nil
	}

	if _, err := projection.DeleteModel(ctx, evt, BadgeCollection, evt.Badge.BadgeID); err != nil {
		return fmt.Errorf("failed to project badge revoke: %w", err)
	}

	return nil
}

func projectMetadataUpdate(
	ctx context.Context,
	projection *store.Projection,
	evt *event.DomainEvent,
	log *logger.Logger,
) error {
	if evt.Badge == nil {
		return nil
	}

	current, err := projection.Models().Get(ctx, BadgeCollection, evt.Badge.BadgeID)
	if err != nil {
		return fmt.Errorf("failed to load badge for metadata update: %w", err)
	}

	if current == nil {
		log.Debugw("metadata update for unknown badge ignored", "badge_id", evt.Badge.BadgeID)

		return nil
	}

	var doc BadgeDoc
	if err := json.Unmarshal(current.Data, &doc); err != nil {
		return fmt.Errorf("failed to decode badge document: %w", err)
	}

	if evt.Badge.Name != "" {
		doc.Name = evt.Badge.Name
	}

	if evt.Badge.Category != "" {
		doc.Category = evt.Badge.Category
	}

	if evt.Badge.Level > 0 {
		doc.Level = evt.Badge.Level
	}

	if evt.Badge.MetadataURI != "" {
		doc.MetadataURI = evt.Badge.MetadataURI
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode badge document: %w", err)
	}

	if _, err := projection.UpdateModel(ctx, evt, BadgeCollection, evt.Badge.BadgeID, data); err != nil {
		return fmt.Errorf("failed to project metadata update: %w", err)
	}

	return nil
}

func projectCommunity(ctx context.Context, projection *store.Projection, evt *event.DomainEvent) error {
	if evt.Community == nil {
		return nil
	}

	doc, err := json.Marshal(CommunityDoc{
		CommunityID: evt.Community.CommunityID,
		Name:        evt.Community.Name,
		Creator:     evt.Community.Creator,
		CreatedAt:   evt.Height,
	})
	if err != nil {
		return fmt.Errorf("failed to encode community document: %w", err)
	}

	if _, err := projection.CreateModel(ctx, evt, CommunityCollection, evt.Community.CommunityID, doc); err != nil {
		return fmt.Errorf("failed to project community creation: %w", err)
	}

	return nil
}
