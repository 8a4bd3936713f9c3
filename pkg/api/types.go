package api

import (
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/invalidation"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/goran-ethernal/ChainReactor/internal/pipeline"
	"github.com/goran-ethernal/ChainReactor/internal/reorg"
	"github.com/goran-ethernal/ChainReactor/internal/routing"
	"github.com/goran-ethernal/ChainReactor/internal/store"
)

// AcceptedResponse acknowledges a queued batch.
type AcceptedResponse struct {
	Status  string `json:"status"`
	BatchID string `json:"batch_id,omitempty"`
	Block   uint64 `json:"block"`
	Reorg   bool   `json:"reorg,omitempty"`
}

// RuleRequest creates a routing rule. Handlers names the bootstrap-installed
// handlers to attach; empty attaches all of them.
type RuleRequest struct {
	Name     string         `json:"name"`
	Filter   routing.Filter `json:"filter"`
	Handlers []string       `json:"handlers,omitempty"`
}

// RulesResponse lists routing rules.
type RulesResponse struct {
	Rules []routing.Rule `json:"rules"`
	Total int            `json:"total"`
}

// InvalidationRulesResponse lists cache invalidation rules.
type InvalidationRulesResponse struct {
	Rules []invalidation.Rule `json:"rules"`
	Total int                 `json:"total"`
}

// NotificationsResponse pages through the notification history.
type NotificationsResponse struct {
	Notifications []*notify.Record `json:"notifications"`
	Pagination    PaginationResult `json:"pagination"`
}

// RollbackLogResponse pages through the rollback journal.
type RollbackLogResponse struct {
	Entries    []*store.UndoEntry `json:"entries"`
	Pagination PaginationResult   `json:"pagination"`
}

// PaginationResult contains pagination metadata.
type PaginationResult struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// CacheStats describes one registered cache store.
type CacheStats struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

// StatsResponse aggregates the counters of every pipeline stage.
type StatsResponse struct {
	Pipeline      pipeline.Stats     `json:"pipeline"`
	Routing       routing.Stats      `json:"routing"`
	Invalidation  invalidation.Stats `json:"invalidation"`
	Notifications notify.Stats       `json:"notifications"`
	Reorg         reorg.Stats        `json:"reorg"`
	Caches        []CacheStats       `json:"caches"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	QueueDepth    int       `json:"queue_depth"`
	RollbackState string    `json:"rollback_state"`
	WSClients     int       `json:"ws_clients"`
}
