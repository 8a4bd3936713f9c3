package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/goran-ethernal/ChainReactor/internal/cache"
	"github.com/goran-ethernal/ChainReactor/internal/chain"
	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/invalidation"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/goran-ethernal/ChainReactor/internal/pipeline"
	"github.com/goran-ethernal/ChainReactor/internal/reorg"
	"github.com/goran-ethernal/ChainReactor/internal/routing"
	"github.com/goran-ethernal/ChainReactor/internal/store"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// Deps bundles the pipeline components the API exposes. Reactor is
// required; everything else degrades to a 404 or an empty section when nil.
type Deps struct {
	Reactor     *pipeline.Reactor
	Rules       *routing.Table
	Invalidator *invalidation.Invalidator
	Dispatcher  *notify.Dispatcher
	Coordinator *reorg.Coordinator
	Journal     *store.Journal
	History     *store.NotificationLog
	Hub         *notify.Hub
	Caches      []cache.Store

	// RuleHandlers are the bootstrap-installed handler implementations,
	// by name, attachable to rules created over the API.
	RuleHandlers map[string]routing.Handler
}

// Handler handles HTTP requests for the API.
type Handler struct {
	deps         Deps
	sharedSecret string
	maxBodyBytes int64
	upgrader     websocket.Upgrader
	log          *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, ingestCfg config.IngestConfig, log *logger.Logger) *Handler {
	maxBodyBytes := ingestCfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = int64(internalcommon.MBToBytes(10)) //nolint:mnd
	}

	return &Handler{
		deps:         deps,
		sharedSecret: ingestCfg.SharedSecret,
		maxBodyBytes: maxBodyBytes,
		upgrader: websocket.Upgrader{
			// Cross-origin policy is enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// IngestBatch accepts one event batch from the indexer.
// @Summary Ingest an event batch
// @Description Queue one chain event batch (or reorg signal) for processing
// @Tags Ingest
// @Accept json
// @Produce json
// @Param batch body chain.EventBatch true "Event batch"
// @Success 202 {object} AcceptedResponse "Batch queued"
// @Failure 400 {object} ErrorResponse "Malformed payload"
// @Failure 401 {object} ErrorResponse "Invalid signature"
// @Failure 409 {object} ErrorResponse "Rollback already in progress"
// @Failure 413 {object} ErrorResponse "Payload too large"
// @Failure 503 {object} ErrorResponse "Queue full"
// @Router /events [post]
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))

			return
		}

		respondError(w, http.StatusBadRequest, "failed to read request body")

		return
	}

	if h.sharedSecret != "" {
		signature := r.Header.Get(internalcommon.SignatureHeader)
		if !internalcommon.VerifySignature(h.sharedSecret, body, signature) {
			respondError(w, http.StatusUnauthorized, "invalid batch signature")

			return
		}
	}

	batch, err := chain.DecodeBatch(bytes.NewReader(body))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())

		return
	}

	// A reorg signal arriving mid-rollback would only be rejected by the
	// coordinator later; answering 409 here lets the indexer redeliver.
	if batch.IsReorgSignal() && h.deps.Coordinator != nil &&
		h.deps.Coordinator.State() == reorg.StateRollingBack {
		respondError(w, http.StatusConflict, "a rollback is already in progress")

		return
	}

	if err := h.deps.Reactor.Submit(batch); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrQueueFull):
			respondError(w, http.StatusServiceUnavailable, "ingest queue is full")
		case errors.Is(err, pipeline.ErrReactorStopped):
			respondError(w, http.StatusServiceUnavailable, "reactor is shut down")
		default:
			h.log.Errorf("failed to queue batch: %v", err)
			respondError(w, http.StatusInternalServerError, "failed to queue batch")
		}

		return
	}

	respondJSON(w, http.StatusAccepted, AcceptedResponse{
		Status:  "accepted",
		BatchID: batch.BatchID,
		Block:   batch.Block.Index,
		Reorg:   batch.IsReorgSignal(),
	})
}

// ListRules returns all routing rules.
// @Summary List routing rules
// @Tags Routing
// @Produce json
// @Success 200 {object} RulesResponse "Routing rules"
// @Router /routing/rules [get]
func (h *Handler) ListRules(w http.ResponseWriter, _ *http.Request) {
	rules := h.deps.Rules.Rules()

	respondJSON(w, http.StatusOK, RulesResponse{Rules: rules, Total: len(rules)})
}

// CreateRule registers a routing rule and attaches the named handlers.
// @Summary Create a routing rule
// @Tags Routing
// @Accept json
// @Produce json
// @Param rule body RuleRequest true "Rule definition"
// @Success 201 {object} routing.Rule "Created rule"
// @Failure 400 {object} ErrorResponse "Invalid rule"
// @Router /routing/rules [post]
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("malformed rule: %v", err))

		return
	}

	handlers, err := h.resolveHandlers(req.Handlers)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())

		return
	}

	ruleID, err := h.deps.Rules.Register(req.Name, req.Filter)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())

		return
	}

	for _, handler := range handlers {
		h.deps.Rules.AddHandler(ruleID, handler)
	}

	rule, _ := h.deps.Rules.Get(ruleID)
	respondJSON(w, http.StatusCreated, rule)
}

// resolveHandlers maps requested handler names onto the bootstrap-installed
// implementations, in a stable order. Empty means all of them.
func (h *Handler) resolveHandlers(names []string) ([]routing.Handler, error) {
	if len(names) == 0 {
		names = make([]string, 0, len(h.deps.RuleHandlers))
		for name := range h.deps.RuleHandlers {
			names = append(names, name)
		}

		sort.Strings(names)
	}

	handlers := make([]routing.Handler, 0, len(names))

	for _, name := range names {
		handler, ok := h.deps.RuleHandlers[name]
		if !ok {
			return nil, fmt.Errorf("unknown handler %q", name)
		}

		handlers = append(handlers, handler)
	}

	return handlers, nil
}

// GetRule returns one routing rule.
// @Summary Get a routing rule
// @Tags Routing
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} routing.Rule "Rule"
// @Failure 404 {object} ErrorResponse "Rule not found"
// @Router /routing/rules/{id} [get]
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.deps.Rules.Get(r.PathValue("id"))
	if !ok {
		respondError(w, http.StatusNotFound, "rule not found")

		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// DeleteRule removes a routing rule.
// @Summary Delete a routing rule
// @Tags Routing
// @Produce json
// @Param id path string true "Rule ID"
// @Success 204 "Rule deleted"
// @Failure 404 {object} ErrorResponse "Rule not found"
// @Router /routing/rules/{id} [delete]
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Rules.Delete(r.PathValue("id")) {
		respondError(w, http.StatusNotFound, "rule not found")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EnableRule re-enables a routing rule.
// @Summary Enable a routing rule
// @Tags Routing
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} routing.Rule "Updated rule"
// @Failure 404 {object} ErrorResponse "Rule not found"
// @Router /routing/rules/{id}/enable [post]
func (h *Handler) EnableRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleEnabled(w, r, true)
}

// DisableRule pauses a routing rule without deleting it.
// @Summary Disable a routing rule
// @Tags Routing
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} routing.Rule "Updated rule"
// @Failure 404 {object} ErrorResponse "Rule not found"
// @Router /routing/rules/{id}/disable [post]
func (h *Handler) DisableRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleEnabled(w, r, false)
}

func (h *Handler) setRuleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := r.PathValue("id")

	ok := false
	if enabled {
		ok = h.deps.Rules.Enable(id)
	} else {
		ok = h.deps.Rules.Disable(id)
	}

	if !ok {
		respondError(w, http.StatusNotFound, "rule not found")

		return
	}

	rule, _ := h.deps.Rules.Get(id)
	respondJSON(w, http.StatusOK, rule)
}

// RouteLog returns the most recent routing decisions, newest first.
// @Summary Get the route log
// @Tags Routing
// @Produce json
// @Success 200 {array} routing.LogEntry "Recent routing decisions"
// @Router /routing/route-log [get]
func (h *Handler) RouteLog(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Rules.RouteLog())
}

// ListInvalidationRules returns the cache invalidation rule per event kind.
// @Summary List invalidation rules
// @Tags Invalidation
// @Produce json
// @Success 200 {object} InvalidationRulesResponse "Invalidation rules"
// @Router /invalidation/rules [get]
func (h *Handler) ListInvalidationRules(w http.ResponseWriter, _ *http.Request) {
	rules := h.deps.Invalidator.Rules().Snapshot()

	respondJSON(w, http.StatusOK, InvalidationRulesResponse{Rules: rules, Total: len(rules)})
}

// UpsertInvalidationRule replaces the invalidation rule for an event kind.
// @Summary Create or replace an invalidation rule
// @Tags Invalidation
// @Accept json
// @Produce json
// @Param rule body invalidation.Rule true "Rule definition"
// @Success 200 {object} invalidation.Rule "Stored rule"
// @Failure 400 {object} ErrorResponse "Invalid rule"
// @Router /invalidation/rules [put]
func (h *Handler) UpsertInvalidationRule(w http.ResponseWriter, r *http.Request) {
	var rule invalidation.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("malformed rule: %v", err))

		return
	}

	if err := h.deps.Invalidator.Rules().Add(rule); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())

		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// RemoveInvalidationRule deletes the invalidation rule for an event kind.
// @Summary Delete an invalidation rule
// @Tags Invalidation
// @Produce json
// @Param kind path string true "Event kind"
// @Success 204 "Rule deleted"
// @Failure 404 {object} ErrorResponse "No rule for kind"
// @Router /invalidation/rules/{kind} [delete]
func (h *Handler) RemoveInvalidationRule(w http.ResponseWriter, r *http.Request) {
	kind := event.Kind(r.PathValue("kind"))

	if !h.deps.Invalidator.Rules().Remove(kind) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no invalidation rule for kind %q", kind))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStats aggregates the counters of every stage.
// @Summary Get pipeline statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} StatsResponse "Aggregated statistics"
// @Router /stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{
		Pipeline:      h.deps.Reactor.Stats(),
		Routing:       h.deps.Rules.Stats(),
		Invalidation:  h.deps.Invalidator.Stats(),
		Notifications: h.deps.Dispatcher.Stats(),
		Reorg:         h.deps.Coordinator.Stats(),
		Caches:        h.cacheStats(r),
	})
}

// GetRoutingStats returns the routing table counters.
// @Summary Get routing statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} routing.Stats "Routing statistics"
// @Router /stats/routing [get]
func (h *Handler) GetRoutingStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Rules.Stats())
}

// GetInvalidationStats returns the cache invalidation counters.
// @Summary Get invalidation statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} invalidation.Stats "Invalidation statistics"
// @Router /stats/invalidation [get]
func (h *Handler) GetInvalidationStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Invalidator.Stats())
}

// GetNotificationStats returns the dispatcher counters.
// @Summary Get notification statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} notify.Stats "Notification statistics"
// @Router /stats/notifications [get]
func (h *Handler) GetNotificationStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Dispatcher.Stats())
}

// GetReorgStats returns the rollback coordinator counters.
// @Summary Get reorg statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} reorg.Stats "Reorg statistics"
// @Router /stats/reorg [get]
func (h *Handler) GetReorgStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Coordinator.Stats())
}

// GetCacheStats returns entry counts for every registered cache store.
// @Summary Get cache statistics
// @Tags Stats
// @Produce json
// @Success 200 {array} CacheStats "Per-store entry counts"
// @Router /stats/caches [get]
func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cacheStats(r))
}

func (h *Handler) cacheStats(r *http.Request) []CacheStats {
	stats := make([]CacheStats, 0, len(h.deps.Caches))

	for _, s := range h.deps.Caches {
		entries, err := s.Len(r.Context())
		if err != nil {
			h.log.Warnf("failed to size cache store %s: %v", s.Name(), err)

			continue
		}

		stats = append(stats, CacheStats{Name: s.Name(), Entries: entries})
	}

	return stats
}

// GetPipelineStats returns the reactor's ingest counters.
// @Summary Get ingest statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} pipeline.Stats "Ingest statistics"
// @Router /stats/pipeline [get]
func (h *Handler) GetPipelineStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Reactor.Stats())
}

// ListNotifications pages through the persisted notification history.
// @Summary List notification history
// @Tags Notifications
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param status query string false "Filter by status" Enums(pending, sent, failed)
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} NotificationsResponse "Notification history"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Router /notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		respondError(w, http.StatusNotFound, "notification history is not enabled")

		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())

		return
	}

	status := notify.Status(r.URL.Query().Get("status"))
	switch status {
	case "", notify.StatusPending, notify.StatusSent, notify.StatusFailed:
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))

		return
	}

	records, total, err := h.deps.History.History(r.Context(), r.URL.Query().Get("user_id"), status, limit, offset)
	if err != nil {
		h.log.Errorf("failed to list notifications: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list notifications")

		return
	}

	respondJSON(w, http.StatusOK, NotificationsResponse{
		Notifications: records,
		Pagination: PaginationResult{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(records) < total,
		},
	})
}

// RollbackLog pages through the rollback journal, newest first.
// @Summary List rollback journal entries
// @Tags Reorg
// @Produce json
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} RollbackLogResponse "Journal entries"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Router /rollback-log [get]
func (h *Handler) RollbackLog(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())

		return
	}

	entries, total, err := h.deps.Journal.List(r.Context(), limit, offset)
	if err != nil {
		h.log.Errorf("failed to list rollback journal: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list rollback journal")

		return
	}

	respondJSON(w, http.StatusOK, RollbackLogResponse{
		Entries: entries,
		Pagination: PaginationResult{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(entries) < total,
		},
	})
}

// ServeWS upgrades the connection and streams notifications and reorg
// announcements. The optional user query parameter scopes delivery.
// @Summary Subscribe to live notifications
// @Tags Notifications
// @Param user query string false "Scope to one user's notifications"
// @Success 101 "Switching protocols"
// @Router /ws [get]
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		respondError(w, http.StatusNotFound, "websocket delivery is not enabled")

		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Debugw("websocket upgrade failed", "error", err)

		return
	}

	h.deps.Hub.HandleConn(r.Context(), conn, r.URL.Query().Get("user"))
}

// Health returns the health status of the reaction pipeline.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Pipeline health"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}

	response.QueueDepth = h.deps.Reactor.Stats().QueueDepth

	if h.deps.Coordinator != nil {
		response.RollbackState = string(h.deps.Coordinator.State())
	}

	if h.deps.Hub != nil {
		response.WSClients = h.deps.Hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, response)
}

// parsePagination reads the limit and offset query parameters.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageLimit

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, fmt.Errorf("invalid limit: must be between 1 and %d", maxPageLimit)
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset: must be non-negative")
		}
	}

	return limit, offset, nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode JSON first to catch any errors before writing status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(status)

	if _, err := w.Write(encoded); err != nil {
		// Headers already sent, nothing left to do.
		return
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
