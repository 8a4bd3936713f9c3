package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics
	dbQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"db", "operation"},
	)

	dbQueryTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainreactor_db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"db", "operation"},
	)

	dbErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"db", "error_type"},
	)

	// Ingest metrics
	BatchesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_batches_ingested_total",
			Help: "Total number of event batches accepted by the ingest endpoint",
		},
		[]string{"chain"},
	)

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_events_ingested_total",
			Help: "Total number of raw chain events accepted",
		},
		[]string{"chain"},
	)

	BatchesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_batches_rejected_total",
			Help: "Total number of event batches rejected at ingest",
		},
		[]string{"reason"},
	)

	LastSeenBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainreactor_last_seen_block",
			Help: "The highest block number observed per chain",
		},
		[]string{"chain"},
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreactor_ingest_queue_depth",
			Help: "Number of accepted batches waiting to be processed",
		},
	)

	// Classification metrics
	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_events_classified_total",
			Help: "Total number of events classified by kind",
		},
		[]string{"kind"},
	)

	EventsUnclassified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_events_unclassified_total",
			Help: "Total number of events that matched no classification",
		},
	)

	ClassifierMemoHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_classifier_memo_hits_total",
			Help: "Total number of classifications served from the memo cache",
		},
	)

	// Routing metrics
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_events_dispatched_total",
			Help: "Total number of domain events dispatched to subscribers",
		},
		[]string{"kind"},
	)

	SubscriptionsMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_subscriptions_matched_total",
			Help: "Total number of subscription matches",
		},
		[]string{"kind"},
	)

	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_handler_errors_total",
			Help: "Total number of subscriber handler errors",
		},
		[]string{"kind"},
	)

	EventsUnrouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_events_unrouted_total",
			Help: "Total number of events that matched no subscription",
		},
		[]string{"kind"},
	)

	// Invalidation metrics
	KeysInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_cache_keys_invalidated_total",
			Help: "Total number of cache keys invalidated",
		},
	)

	InvalidationBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_cache_invalidation_batches_total",
			Help: "Total number of invalidation batches applied",
		},
	)

	InvalidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_cache_invalidation_failures_total",
			Help: "Total number of failed cache invalidations",
		},
	)

	InvalidationTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainreactor_cache_invalidation_duration_seconds",
			Help:    "Time taken to apply an invalidation batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	RewarmQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_cache_rewarm_queued_total",
			Help: "Total number of keys queued for rewarming",
		},
	)

	RewarmCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_cache_rewarm_completed_total",
			Help: "Total number of keys successfully rewarmed",
		},
	)

	RewarmFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_cache_rewarm_failures_total",
			Help: "Total number of failed rewarm attempts",
		},
	)

	// Notification metrics
	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_notifications_enqueued_total",
			Help: "Total number of notifications accepted for delivery",
		},
		[]string{"kind"},
	)

	NotificationBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_notification_batches_total",
			Help: "Total number of notification batches flushed",
		},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_notifications_delivered_total",
			Help: "Total number of successful channel deliveries",
		},
		[]string{"channel"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_notification_failures_total",
			Help: "Total number of failed channel deliveries",
		},
		[]string{"channel"},
	)

	NotificationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_notification_retries_total",
			Help: "Total number of delivery retries",
		},
		[]string{"channel"},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_notifications_dropped_total",
			Help: "Total number of notifications dropped after exhausting retries",
		},
		[]string{"channel"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreactor_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)

	// Reorg metrics
	ReorgsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_reorgs_handled_total",
			Help: "Total number of reorg signals processed",
		},
		[]string{"chain"},
	)

	ReorgEntriesUndone = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_reorg_entries_undone_total",
			Help: "Total number of journal entries undone during rollbacks",
		},
	)

	ReorgUndoFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_reorg_undo_failures_total",
			Help: "Total number of journal entries whose undo failed",
		},
	)

	RollbackDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainreactor_rollback_duration_seconds",
			Help:    "Time taken to complete a rollback",
			Buckets: prometheus.DefBuckets,
		},
	)

	JournalSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreactor_rollback_journal_entries",
			Help: "Current number of entries in the rollback journal",
		},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreactor_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainreactor_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreactor_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainreactor_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func DBQueryInc(db string, operation string) {
	dbQueries.WithLabelValues(db, operation).Inc()
}

func DBQueryDuration(db string, operation string, duration time.Duration) {
	dbQueryTime.WithLabelValues(db, operation).Observe(duration.Seconds())
}

func DBErrorsInc(db string, errorType string) {
	dbErrors.WithLabelValues(db, errorType).Inc()
}

func BatchIngested(chain string, eventCount int, maxBlock uint64) {
	BatchesIngested.WithLabelValues(chain).Inc()
	EventsIngested.WithLabelValues(chain).Add(float64(eventCount))
	LastSeenBlock.WithLabelValues(chain).Set(float64(maxBlock))
}

func BatchRejectedInc(reason string) {
	BatchesRejected.WithLabelValues(reason).Inc()
}

func IngestQueueSet(depth int) {
	IngestQueueDepth.Set(float64(depth))
}

func EventClassifiedInc(kind string) {
	EventsClassified.WithLabelValues(kind).Inc()
}

func EventUnclassifiedInc() {
	EventsUnclassified.Inc()
}

func ClassifierMemoHitInc() {
	ClassifierMemoHits.Inc()
}

func EventDispatched(kind string, matched int) {
	EventsDispatched.WithLabelValues(kind).Inc()
	if matched == 0 {
		EventsUnrouted.WithLabelValues(kind).Inc()
		return
	}
	SubscriptionsMatched.WithLabelValues(kind).Add(float64(matched))
}

func HandlerErrorInc(kind string) {
	HandlerErrors.WithLabelValues(kind).Inc()
}

func InvalidationApplied(keyCount int, duration time.Duration) {
	InvalidationBatches.Inc()
	KeysInvalidated.Add(float64(keyCount))
	InvalidationTime.Observe(duration.Seconds())
}

func InvalidationFailureInc() {
	InvalidationFailures.Inc()
}

func RewarmQueuedInc() {
	RewarmQueued.Inc()
}

func RewarmCompletedInc() {
	RewarmCompleted.Inc()
}

func RewarmFailureInc() {
	RewarmFailures.Inc()
}

func NotificationEnqueuedInc(kind string) {
	NotificationsEnqueued.WithLabelValues(kind).Inc()
}

func NotificationBatchFlushed() {
	NotificationBatches.Inc()
}

func WebsocketClientsSet(n int) {
	WebsocketClients.Set(float64(n))
}

func NotificationDelivered(channel string, count int) {
	NotificationsDelivered.WithLabelValues(channel).Add(float64(count))
}

func NotificationFailureInc(channel string) {
	NotificationFailures.WithLabelValues(channel).Inc()
}

func NotificationRetryInc(channel string) {
	NotificationRetries.WithLabelValues(channel).Inc()
}

func NotificationDroppedInc(channel string) {
	NotificationsDropped.WithLabelValues(channel).Inc()
}

func ReorgHandled(chain string, undone int, failures int, duration time.Duration) {
	ReorgsHandled.WithLabelValues(chain).Inc()
	ReorgEntriesUndone.Add(float64(undone))
	ReorgUndoFailures.Add(float64(failures))
	RollbackDuration.Observe(duration.Seconds())
}

func JournalSizeSet(entries int) {
	JournalSize.Set(float64(entries))
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	// Update uptime
	Uptime.Set(time.Since(startTime).Seconds())

	// Update goroutine count
	Goroutines.Set(float64(runtime.NumGoroutine()))

	// Update memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
