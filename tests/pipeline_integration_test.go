package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/goran-ethernal/ChainReactor/internal/pipeline"
	"github.com/goran-ethernal/ChainReactor/pkg/api"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
	"github.com/goran-ethernal/ChainReactor/tests/helpers"
	"github.com/stretchr/testify/require"
)

// postBatch marshals the batch and delivers it to the webhook endpoint.
func postBatch(t *testing.T, baseURL string, batch any) *http.Response {
	t.Helper()

	body, err := json.Marshal(batch)
	require.NoError(t, err)

	resp, err := http.Post(baseURL+"/api/v1/events", "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	return resp
}

// TestPipeline_WebhookToReactions runs the complete flow: webhook delivery →
// classification → routing → cache invalidation, projection and notification
// dispatch, all over the real stack (SQLite, in-memory cache, HTTP server).
func TestPipeline_WebhookToReactions(t *testing.T) {
	ctx := context.Background()

	// ========================================
	// 1. SETUP PHASE
	// ========================================

	stack := helpers.NewStack(t)
	baseURL := stack.StartAPI(t, config.IngestConfig{})
	t.Logf("✓ Pipeline stack ready, API at %s", baseURL)

	// Warm the cache the way a read API would, so the reactions have
	// something to invalidate.
	warmKeys := []string{
		"badge:B-100",
		"badges:user:alice:list",
		"badges:list:recent",
		"communities:list:all",
	}
	for _, key := range warmKeys {
		require.NoError(t, stack.Cache.Set(ctx, key, []byte(`{"warm":true}`), time.Minute))
	}
	require.NoError(t, stack.Cache.Set(ctx, "profile:alice", []byte(`{"warm":true}`), time.Minute))
	t.Logf("✓ Cache warmed with %d keys", len(warmKeys)+1)

	// ========================================
	// 2. INGEST PHASE
	// ========================================

	mint := helpers.MintBatch("batch-mint-100", 100, "alice", "B-100")
	resp := postBatch(t, baseURL, mint)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted api.AcceptedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()
	require.Equal(t, "accepted", accepted.Status)
	require.Equal(t, "batch-mint-100", accepted.BatchID)
	require.False(t, accepted.Reorg)

	community := helpers.CommunityBatch("batch-community-101", 101, "C-7", "Gophers", "bob")
	resp = postBatch(t, baseURL, community)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		stats := stack.Reactor.Stats()
		return stats.BatchesAccepted == 2 && stats.EventsProcessed == 2
	}, 5*time.Second, 20*time.Millisecond, "batches were not processed")

	t.Logf("✓ 2 batches ingested and processed (blocks 100-101)")

	// ========================================
	// 3. VERIFICATION PHASE
	// ========================================

	t.Run("badge projected", func(t *testing.T) {
		model, err := stack.Models.Get(ctx, pipeline.BadgeCollection, "B-100")
		require.NoError(t, err)
		require.NotNil(t, model)

		var doc pipeline.BadgeDoc
		require.NoError(t, json.Unmarshal(model.Data, &doc))
		require.Equal(t, "B-100", doc.BadgeID)
		require.Equal(t, "alice", doc.Owner)
		require.Equal(t, "Integration Badge", doc.Name)
		require.Equal(t, 2, doc.Level)
		require.Equal(t, uint64(100), doc.MintedAt)
	})

	t.Run("community projected", func(t *testing.T) {
		model, err := stack.Models.Get(ctx, pipeline.CommunityCollection, "C-7")
		require.NoError(t, err)
		require.NotNil(t, model)

		var doc pipeline.CommunityDoc
		require.NoError(t, json.Unmarshal(model.Data, &doc))
		require.Equal(t, "C-7", doc.CommunityID)
		require.Equal(t, "bob", doc.Creator)
		require.Equal(t, uint64(101), doc.CreatedAt)
	})

	t.Run("caches invalidated", func(t *testing.T) {
		for _, key := range warmKeys {
			_, found, err := stack.Cache.Get(ctx, key)
			require.NoError(t, err)
			require.False(t, found, "key %s should have been invalidated", key)
		}

		_, found, err := stack.Cache.Get(ctx, "profile:alice")
		require.NoError(t, err)
		require.True(t, found, "unrelated key must survive invalidation")
	})

	t.Run("notifications delivered", func(t *testing.T) {
		require.Eventually(t, func() bool {
			records, _, err := stack.History.History(ctx, "alice", notify.StatusSent, 10, 0)
			return err == nil && len(records) == 1
		}, 5*time.Second, 20*time.Millisecond, "alice's mint notification never landed")

		records, total, err := stack.History.History(ctx, "alice", "", 10, 0)
		require.NoError(t, err)
		require.Equal(t, 1, total)
		require.Equal(t, event.KindBadgeMinted, records[0].Kind)
		require.Equal(t, notify.StatusSent, records[0].Status)

		require.Eventually(t, func() bool {
			records, _, err := stack.History.History(ctx, "bob", notify.StatusSent, 10, 0)
			return err == nil && len(records) == 1
		}, 5*time.Second, 20*time.Millisecond, "bob's community notification never landed")
	})

	t.Run("journal captured the writes", func(t *testing.T) {
		count, err := stack.Journal.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		maxHeight, err := stack.Journal.MaxHeight(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(101), maxHeight)
	})

	t.Run("route log recorded dispatches", func(t *testing.T) {
		entries := stack.Table.RouteLog()
		require.Len(t, entries, 2)
	})

	t.Run("duplicate batch is deduplicated", func(t *testing.T) {
		resp := postBatch(t, baseURL, helpers.MintBatch("batch-mint-100", 100, "alice", "B-100"))
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		resp.Body.Close()

		require.Eventually(t, func() bool {
			return stack.Reactor.Stats().BatchesDuplicate == 1
		}, 5*time.Second, 20*time.Millisecond, "redelivery was not deduplicated")

		// Nothing ran twice.
		count, err := stack.Journal.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		records, _, err := stack.History.History(ctx, "alice", "", 10, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
	})

	t.Run("GET /api/v1/stats", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/v1/stats")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats api.StatsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))

		require.Equal(t, uint64(2), stats.Pipeline.BatchesAccepted)
		require.Equal(t, uint64(1), stats.Pipeline.BatchesDuplicate)
		require.Equal(t, uint64(2), stats.Pipeline.EventsProcessed)
		require.NotZero(t, stats.Invalidation.KeysInvalidated)
		require.Len(t, stats.Caches, 1)
		require.Equal(t, "badges", stats.Caches[0].Name)
	})

	t.Run("GET /api/v1/notifications filters by user", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/api/v1/notifications?user_id=%s", baseURL, "alice"))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result api.NotificationsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		require.Len(t, result.Notifications, 1)
		require.Equal(t, "alice", result.Notifications[0].UserID)
	})

	t.Run("GET /health", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var health api.HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		require.Equal(t, "ok", health.Status)
		require.Equal(t, "idle", health.RollbackState)
	})

	t.Log("✅ Webhook-to-reactions flow verified end to end")
}

// TestPipeline_RuntimeRuleChanges exercises the admin surface against a live
// pipeline: a rule added over HTTP reacts to subsequent batches, a disabled
// rule does not.
func TestPipeline_RuntimeRuleChanges(t *testing.T) {
	ctx := context.Background()

	stack := helpers.NewStack(t)
	baseURL := stack.StartAPI(t, config.IngestConfig{})

	// Disable the bootstrap notification rule so only the runtime-managed
	// one can produce records.
	var notificationRuleID string
	for _, rule := range stack.Table.Rules() {
		if rule.Name == "notification" {
			notificationRuleID = rule.ID
			require.True(t, stack.Table.Disable(rule.ID))
		}
	}
	require.NotEmpty(t, notificationRuleID)

	// Mint while notifications are off: projection still runs, history
	// stays empty.
	resp := postBatch(t, baseURL, helpers.MintBatch("rule-batch-1", 200, "carol", "B-200"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		model, err := stack.Models.Get(ctx, pipeline.BadgeCollection, "B-200")
		return err == nil && model != nil
	}, 5*time.Second, 20*time.Millisecond)

	_, total, err := stack.History.History(ctx, "carol", "", 10, 0)
	require.NoError(t, err)
	require.Zero(t, total, "disabled rule must not dispatch")

	// Add a narrow notification rule over HTTP: badge mints only.
	ruleBody := []byte(`{"name":"mint-alerts","filter":{"kind":"badge_minted"},"handlers":["notification"]}`)
	resp, err = http.Post(baseURL+"/api/v1/routing/rules", "application/json", bytes.NewReader(ruleBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.NotEmpty(t, created.ID)

	// The next mint flows through the new rule.
	resp = postBatch(t, baseURL, helpers.MintBatch("rule-batch-2", 201, "carol", "B-201"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		records, _, err := stack.History.History(ctx, "carol", notify.StatusSent, 10, 0)
		return err == nil && len(records) == 1
	}, 5*time.Second, 20*time.Millisecond, "runtime rule never dispatched")

	// A community event does not match the narrow filter.
	resp = postBatch(t, baseURL, helpers.CommunityBatch("rule-batch-3", 202, "C-9", "Quiet", "carol"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		return stack.Reactor.Stats().BatchesAccepted == 3
	}, 5*time.Second, 20*time.Millisecond)

	records, _, err := stack.History.History(ctx, "carol", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1, "community event must not match the badge_minted filter")

	// Deleting the rule over HTTP removes it from the table.
	req, err := http.NewRequest(http.MethodDelete, baseURL+"/api/v1/routing/rules/"+created.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	_, found := stack.Table.Get(created.ID)
	require.False(t, found)

	t.Log("✅ Runtime rule lifecycle verified against a live pipeline")
}
