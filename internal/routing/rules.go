package routing

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/goran-ethernal/ChainReactor/internal/event"
)

// Handler reacts to one routed domain event. Handlers run inside the
// dispatch cycle; long work should move to the caller's own workers.
type Handler func(ctx context.Context, evt *event.DomainEvent) error

// Filter narrows the events a rule reacts to. Unset fields match anything,
// so the zero Filter routes every event.
type Filter struct {
	Kind      event.Kind      `json:"kind,omitempty"`
	Contract  *common.Address `json:"contract,omitempty"`
	Method    string          `json:"method,omitempty"`
	MinHeight uint64          `json:"min_height,omitempty"`
	MaxHeight uint64          `json:"max_height,omitempty"`
	TxHash    *common.Hash    `json:"tx_hash,omitempty"`
}

// Matches reports whether the event passes every set field.
func (f Filter) Matches(evt *event.DomainEvent) bool {
	if f.Kind != "" && f.Kind != evt.Kind {
		return false
	}

	if f.Contract != nil && *f.Contract != evt.Contract {
		return false
	}

	if f.Method != "" && !strings.EqualFold(f.Method, evt.Method) {
		return false
	}

	if f.MinHeight > 0 && evt.Height < f.MinHeight {
		return false
	}

	if f.MaxHeight > 0 && evt.Height > f.MaxHeight {
		return false
	}

	if f.TxHash != nil && *f.TxHash != evt.TxHash {
		return false
	}

	return true
}

// Rule binds a filter to an ordered handler chain. Handlers run in the
// order they were added whenever the rule matches a dispatched event.
type Rule struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Filter       Filter `json:"filter"`
	Enabled      bool   `json:"enabled"`
	HandlerCount int    `json:"handler_count"`

	handlers []Handler
}

// LogEntry records one rule match for observability.
type LogEntry struct {
	RuleID    string     `json:"rule_id"`
	RuleName  string     `json:"rule_name"`
	EventID   uuid.UUID  `json:"event_id"`
	Kind      event.Kind `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`
}
