package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Kind names one domain event type. The set is closed: the classifier only
// ever emits these four, and routing filters and invalidation rules are
// looked up by Kind.
type Kind string

const (
	KindBadgeMinted          Kind = "badge_minted"
	KindBadgeRevoked         Kind = "badge_revoked"
	KindBadgeMetadataUpdated Kind = "badge_metadata_updated"
	KindCommunityCreated     Kind = "community_created"
)

// AllKinds lists every Kind the classifier can emit, in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindBadgeMinted,
		KindBadgeRevoked,
		KindBadgeMetadataUpdated,
		KindCommunityCreated,
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindBadgeMinted, KindBadgeRevoked, KindBadgeMetadataUpdated, KindCommunityCreated:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// BadgePayload carries the fields extracted for the badge-scoped kinds.
// Which fields are populated depends on the kind: minted fills Recipient,
// Name, Category and Level; revoked fills Recipient and Reason; a metadata
// update fills Recipient and MetadataURI.
type BadgePayload struct {
	BadgeID     string `json:"badge_id"`
	Recipient   string `json:"recipient"`
	Name        string `json:"name,omitempty"`
	Category    string `json:"category,omitempty"`
	Level       int    `json:"level,omitempty"`
	Reason      string `json:"reason,omitempty"`
	MetadataURI string `json:"metadata_uri,omitempty"`
}

// CommunityPayload carries the fields extracted for community creation.
type CommunityPayload struct {
	CommunityID string `json:"community_id"`
	Name        string `json:"name,omitempty"`
	Creator     string `json:"creator"`
}

// DomainEvent is a classified, typed interpretation of one chain
// transaction operation. It is derived, never persisted: the value lives
// for the duration of one dispatch cycle and is addressed downstream only
// through its payload fields. Exactly one of Badge or Community is set,
// according to Kind.
type DomainEvent struct {
	ID        uuid.UUID         `json:"id"`
	Kind      Kind              `json:"kind"`
	ChainID   uint64            `json:"chain_id"`
	Contract  common.Address    `json:"contract"`
	Method    string            `json:"method,omitempty"`
	TxHash    common.Hash       `json:"tx_hash"`
	Height    uint64            `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Badge     *BadgePayload     `json:"badge,omitempty"`
	Community *CommunityPayload `json:"community,omitempty"`
}

// New allocates a DomainEvent with a fresh ID. Payload assignment is the
// classifier's job.
func New(kind Kind) *DomainEvent {
	return &DomainEvent{
		ID:   uuid.New(),
		Kind: kind,
	}
}

// Actor returns the user the event concerns: the badge recipient or owner,
// or the community creator. Empty when the payload is missing.
func (e *DomainEvent) Actor() string {
	switch {
	case e.Badge != nil:
		return e.Badge.Recipient
	case e.Community != nil:
		return e.Community.Creator
	}
	return ""
}

// Subject returns the entity the event is about: the badge id or the
// community id.
func (e *DomainEvent) Subject() string {
	switch {
	case e.Badge != nil:
		return e.Badge.BadgeID
	case e.Community != nil:
		return e.Community.CommunityID
	}
	return ""
}

func (e *DomainEvent) String() string {
	return fmt.Sprintf("%s(%s) tx=%s height=%d", e.Kind, e.Subject(), e.TxHash, e.Height)
}
