package invalidation

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/ChainReactor/internal/cache"
	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// delaySamples is the sliding-window size for invalidation timings.
const delaySamples = 1000

// Stats is a read-only snapshot of the invalidator's counters.
type Stats struct {
	Batches         uint64            `json:"batches"`
	KeysInvalidated uint64            `json:"keys_invalidated"`
	Failures        uint64            `json:"failures"`
	AvgDurationMs   float64           `json:"avg_duration_ms"`
	ByKind          map[string]uint64 `json:"by_kind"`
	ByKey           map[string]uint64 `json:"by_key"`
	TaggedKeys      int               `json:"tagged_keys"`
	RewarmQueued    uint64            `json:"rewarm_queued"`
	RewarmCompleted uint64            `json:"rewarm_completed"`
	RewarmFailures  uint64            `json:"rewarm_failures"`
	RewarmDropped   uint64            `json:"rewarm_dropped"`
}

// Invalidator broadcasts cache invalidations across every registered store.
// It does not know which store owns which key: exact keys and pattern
// matches are deleted everywhere, which keeps double invalidation safe (a
// delete of an absent key is a no-op). Failures are isolated per key set,
// per pattern and per store; nothing aborts the remaining work.
type Invalidator struct {
	log       *logger.Logger
	rules     *RuleSet
	tags      *TagIndex
	patterns  *patternCache
	rewarm    *rewarmQueue // nil when rewarming is disabled
	rewarmTTL time.Duration

	storesMu sync.RWMutex
	stores   []cache.Store

	mu              sync.Mutex
	batches         uint64
	keysInvalidated uint64
	failures        uint64
	byKind          map[event.Kind]uint64
	byKey           map[string]uint64
	window          *internalcommon.SlidingWindow
}

// New builds an Invalidator over the given rule set. Stores are attached
// with RegisterStore; when rewarming is enabled the background drain loop
// starts immediately and runs until Close.
func New(cfg config.InvalidatorConfig, rewarmTTL time.Duration, rules *RuleSet, log *logger.Logger) *Invalidator {
	inv := &Invalidator{
		log:       log,
		rules:     rules,
		tags:      NewTagIndex(),
		patterns:  newPatternCache(),
		rewarmTTL: rewarmTTL,
		byKind:    make(map[event.Kind]uint64),
		byKey:     make(map[string]uint64),
		window:    internalcommon.NewSlidingWindow(delaySamples),
	}

	if cfg.RewarmEnabled {
		inv.rewarm = newRewarmQueue(
			cfg.RewarmQueueSize,
			cfg.RewarmInterval.Duration,
			cfg.RewarmTimeout.Duration,
			inv.Stores,
			log,
		)
		go inv.rewarm.run()
	}

	metrics.ComponentHealthSet(internalcommon.ComponentCacheInvalidator, true)

	return inv
}

// RegisterStore adds a cache store to the broadcast set.
func (inv *Invalidator) RegisterStore(store cache.Store) {
	inv.storesMu.Lock()
	defer inv.storesMu.Unlock()

	inv.stores = append(inv.stores, store)
}

// Stores returns a snapshot of the registered stores.
func (inv *Invalidator) Stores() []cache.Store {
	inv.storesMu.RLock()
	defer inv.storesMu.RUnlock()

	stores := make([]cache.Store, len(inv.stores))
	copy(stores, inv.stores)

	return stores
}

// SetRewarmFunc registers the loader used to recompute invalidated keys.
// Without a loader (or with rewarming disabled) rewarm tasks are skipped.
func (inv *Invalidator) SetRewarmFunc(fn RewarmFunc) {
	if inv.rewarm != nil {
		inv.rewarm.setFunc(fn)
	}
}

// Rules exposes the rule set for runtime administration.
func (inv *Invalidator) Rules() *RuleSet {
	return inv.rules
}

// Tag records the chain provenance of a cached key so a reorg can find it.
func (inv *Invalidator) Tag(key string, height uint64, txHash common.Hash) {
	inv.tags.Tag(key, height, txHash)
}

// InvalidateForEvent applies the rule for the event's kind: every resolved
// exact key and every pattern match is deleted from all registered stores.
// Returns the number of entries removed. An event kind without a rule is a
// no-op. Invalidating the same event twice is safe.
func (inv *Invalidator) InvalidateForEvent(ctx context.Context, evt *event.DomainEvent) int {
	rule, ok := inv.rules.Lookup(evt.Kind)
	if !ok {
		inv.log.Debugw("no invalidation rule for event kind", "kind", evt.Kind)

		return 0
	}

	start := time.Now()

	keys, patterns := rule.Resolve(evt)

	removed := inv.deleteKeys(ctx, keys)
	removed += inv.deletePatterns(ctx, patterns)

	inv.tags.Forget(keys...)

	if rule.Rewarm && inv.rewarm != nil {
		for _, key := range keys {
			inv.rewarm.enqueue(key, inv.rewarmTTL)
		}
	}

	took := time.Since(start)
	metrics.InvalidationApplied(removed, took)
	inv.recordBatch(evt.Kind, keys, removed, took)

	inv.log.Debugw("cache invalidation applied",
		"kind", evt.Kind, "exactKeys", len(keys), "patterns", len(patterns),
		"removed", removed, "took", took)

	return removed
}

// InvalidateTagged deletes every cached key tagged above the given height or
// belonging to one of the affected transactions. Used by the reorg
// coordinator after rolling back persisted state.
func (inv *Invalidator) InvalidateTagged(ctx context.Context, aboveHeight uint64, affected []common.Hash) int {
	keys := inv.tags.CollectAbove(aboveHeight, affected)
	if len(keys) == 0 {
		return 0
	}

	start := time.Now()
	removed := inv.deleteKeys(ctx, keys)
	took := time.Since(start)

	metrics.InvalidationApplied(removed, took)

	inv.mu.Lock()
	inv.batches++
	inv.keysInvalidated += uint64(removed)
	inv.window.Add(durationMs(took))
	inv.mu.Unlock()

	inv.log.Infow("invalidated reorg-tagged cache keys",
		"aboveHeight", aboveHeight, "affectedTxs", len(affected), "keys", len(keys), "removed", removed)

	return removed
}

// Stats returns a snapshot of the invalidator's counters.
func (inv *Invalidator) Stats() Stats {
	inv.mu.Lock()

	stats := Stats{
		Batches:         inv.batches,
		KeysInvalidated: inv.keysInvalidated,
		Failures:        inv.failures,
		AvgDurationMs:   inv.window.Average(),
		ByKind:          make(map[string]uint64, len(inv.byKind)),
		ByKey:           make(map[string]uint64, len(inv.byKey)),
	}

	for kind, n := range inv.byKind {
		stats.ByKind[string(kind)] = n
	}

	for key, n := range inv.byKey {
		stats.ByKey[key] = n
	}

	inv.mu.Unlock()

	stats.TaggedKeys = inv.tags.Len()

	if inv.rewarm != nil {
		stats.RewarmQueued = inv.rewarm.queued.Load()
		stats.RewarmCompleted = inv.rewarm.completed.Load()
		stats.RewarmFailures = inv.rewarm.failures.Load()
		stats.RewarmDropped = inv.rewarm.dropped.Load()
	}

	return stats
}

// Close stops the rewarm loop. Registered stores stay open; their owner
// closes them.
func (inv *Invalidator) Close() {
	if inv.rewarm != nil {
		inv.rewarm.shutdown()
	}

	metrics.ComponentHealthSet(internalcommon.ComponentCacheInvalidator, false)
}

func (inv *Invalidator) deleteKeys(ctx context.Context, keys []string) int {
	if len(keys) == 0 {
		return 0
	}

	total := 0

	for _, store := range inv.Stores() {
		n, err := store.Delete(ctx, keys...)
		if err != nil {
			inv.noteFailure()
			inv.log.Warnw("cache delete failed", "store", store.Name(), "keys", len(keys), "err", err)

			continue
		}

		total += n
	}

	return total
}

func (inv *Invalidator) deletePatterns(ctx context.Context, patterns []string) int {
	if len(patterns) == 0 {
		return 0
	}

	regexps := make([]*regexp.Regexp, 0, len(patterns))

	for _, pattern := range patterns {
		re, err := inv.patterns.get(pattern)
		if err != nil {
			inv.noteFailure()
			inv.log.Warnw("invalid invalidation pattern", "pattern", pattern, "err", err)

			continue
		}

		regexps = append(regexps, re)
	}

	if len(regexps) == 0 {
		return 0
	}

	total := 0

	for _, store := range inv.Stores() {
		keys, err := store.Keys(ctx)
		if err != nil {
			inv.noteFailure()
			inv.log.Warnw("listing cache keys failed", "store", store.Name(), "err", err)

			continue
		}

		var matched []string

		for _, key := range keys {
			for _, re := range regexps {
				if re.MatchString(key) {
					matched = append(matched, key)

					break
				}
			}
		}

		if len(matched) == 0 {
			continue
		}

		n, err := store.Delete(ctx, matched...)
		if err != nil {
			inv.noteFailure()
			inv.log.Warnw("cache pattern delete failed", "store", store.Name(), "keys", len(matched), "err", err)

			continue
		}

		total += n

		inv.tags.Forget(matched...)
	}

	return total
}

func (inv *Invalidator) recordBatch(kind event.Kind, keys []string, removed int, took time.Duration) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.batches++
	inv.keysInvalidated += uint64(removed)
	inv.byKind[kind]++

	for _, key := range keys {
		inv.byKey[key]++
	}

	inv.window.Add(durationMs(took))
}

func (inv *Invalidator) noteFailure() {
	metrics.InvalidationFailureInc()

	inv.mu.Lock()
	inv.failures++
	inv.mu.Unlock()
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
