// Package pipeline wires the reaction stages together. Batches accepted by
// the webhook enter a bounded queue; a single worker preserves delivery
// order, diverting reorg signals to the rollback coordinator and pushing
// everything else through classification and rule dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/goran-ethernal/ChainReactor/internal/chain"
	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/goran-ethernal/ChainReactor/internal/reorg"
	"github.com/goran-ethernal/ChainReactor/internal/store"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

var (
	// ErrDuplicateBatch marks a batch whose id was already claimed.
	ErrDuplicateBatch = errors.New("batch already processed")

	// ErrQueueFull signals that the ingest queue is at capacity.
	ErrQueueFull = errors.New("ingest queue full")

	// ErrChainNotAllowed rejects batches from chains outside the allow-list.
	ErrChainNotAllowed = errors.New("chain not allowed")

	// ErrReactorStopped rejects submissions after Stop.
	ErrReactorStopped = errors.New("reactor stopped")
)

// Classifier turns one batch into domain events. Satisfied by
// *classifier.Classifier.
type Classifier interface {
	Classify(batch *chain.EventBatch) []*event.DomainEvent
}

// Router fans a domain event out to its matching rules. Satisfied by
// *routing.Table.
type Router interface {
	Dispatch(ctx context.Context, evt *event.DomainEvent) int
}

// ReorgHandler applies a compensating rollback. Satisfied by
// *reorg.Coordinator.
type ReorgHandler interface {
	HandleReorg(ctx context.Context, sig *chain.ReorgSignal) (*reorg.Result, error)
}

// Ledger claims batch ids so redelivered batches process exactly once.
// Satisfied by *store.BatchLedger.
type Ledger interface {
	MarkProcessed(ctx context.Context, batch *store.ProcessedBatch) (bool, error)
}

// Stats is a snapshot of the reactor's ingest counters.
type Stats struct {
	QueueDepth       int    `json:"queue_depth"`
	BatchesAccepted  uint64 `json:"batches_accepted"`
	BatchesDuplicate uint64 `json:"batches_duplicate"`
	BatchesRejected  uint64 `json:"batches_rejected"`
	EventsProcessed  uint64 `json:"events_processed"`
	EventsFailed     uint64 `json:"events_failed"`
	ReorgsDiverted   uint64 `json:"reorgs_diverted"`
}

// Reactor is the single entry point batches take into the system.
type Reactor struct {
	log         *logger.Logger
	classifier  Classifier
	router      Router
	coordinator ReorgHandler
	ledger      Ledger
	allowed     map[uint64]struct{}

	queue  chan *chain.EventBatch
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	stopped          bool
	batchesAccepted  uint64
	batchesDuplicate uint64
	batchesRejected  uint64
	eventsProcessed  uint64
	eventsFailed     uint64
	reorgsDiverted   uint64
}

// New creates a reactor. A nil ledger disables batch deduplication.
func New(
	cfg config.IngestConfig,
	classifier Classifier,
	router Router,
	coordinator ReorgHandler,
	ledger Ledger,
	log *logger.Logger,
) *Reactor {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}

	allowed := make(map[uint64]struct{}, len(cfg.AllowedChains))
	for _, id := range cfg.AllowedChains {
		allowed[id] = struct{}{}
	}

	r := &Reactor{
		log:         log.WithComponent(internalcommon.ComponentIngest),
		classifier:  classifier,
		router:      router,
		coordinator: coordinator,
		ledger:      ledger,
		allowed:     allowed,
		queue:       make(chan *chain.EventBatch, queueSize),
	}

	metrics.ComponentHealthSet(internalcommon.ComponentIngest, true)

	return r
}

// Start launches the processing worker. A single worker keeps batches in
// delivery order; rollback journaling depends on that order.
func (r *Reactor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(ctx)

	r.log.Infow("reactor started", "queue_capacity", cap(r.queue))
}

// Stop halts the worker. The in-flight batch finishes; anything left queued
// waits for upstream redelivery.
func (r *Reactor) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()

		return
	}
	r.stopped = true
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	r.wg.Wait()

	r.log.Info("reactor stopped")
}

// Submit queues one decoded batch. Non-blocking: a full queue is reported
// to the caller instead of absorbing backpressure here.
func (r *Reactor) Submit(batch *chain.EventBatch) error {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()

	if stopped {
		return ErrReactorStopped
	}

	select {
	case r.queue <- batch:
		metrics.IngestQueueSet(len(r.queue))

		return nil
	default:
		metrics.BatchRejectedInc("queue_full")

		return ErrQueueFull
	}
}

func (r *Reactor) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-r.queue:
			metrics.IngestQueueSet(len(r.queue))

			if err := r.Process(ctx, batch); err != nil {
				r.log.Warnw("batch processing failed",
					"batch_id", batch.BatchID,
					"block", batch.Block.Index,
					"error", err,
				)
			}
		}
	}
}

// Process runs one batch through the pipeline synchronously. Reorg signals
// divert to the coordinator; regular batches are claimed, classified and
// dispatched.
func (r *Reactor) Process(ctx context.Context, batch *chain.EventBatch) error {
	if batch == nil {
		return nil
	}

	if err := r.admit(batch); err != nil {
		return err
	}

	if batch.IsReorgSignal() {
		return r.divert(ctx, batch)
	}

	if err := r.claim(ctx, batch); err != nil {
		return err
	}

	events := r.classifier.Classify(batch)
	metrics.BatchIngested(strconv.FormatUint(batch.ChainID(), 10), len(events), batch.MaxBlock())

	processed := 0
	failed := 0

	for _, evt := range events {
		if ctx.Err() != nil {
			failed = len(events) - processed

			break
		}

		r.router.Dispatch(ctx, evt)
		processed++
	}

	r.noteBatch(processed, failed)

	r.log.Debugw("batch processed",
		"batch_id", batch.BatchID,
		"chain_id", batch.ChainID(),
		"block", batch.Block.Index,
		"events", processed,
	)

	if failed > 0 {
		return fmt.Errorf("batch interrupted: %w", ctx.Err())
	}

	return nil
}

// Stats returns a snapshot of the reactor's counters.
func (r *Reactor) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		QueueDepth:       len(r.queue),
		BatchesAccepted:  r.batchesAccepted,
		BatchesDuplicate: r.batchesDuplicate,
		BatchesRejected:  r.batchesRejected,
		EventsProcessed:  r.eventsProcessed,
		EventsFailed:     r.eventsFailed,
		ReorgsDiverted:   r.reorgsDiverted,
	}
}

func (r *Reactor) admit(batch *chain.EventBatch) error {
	if len(r.allowed) == 0 {
		return nil
	}

	if _, ok := r.allowed[batch.ChainID()]; !ok {
		r.mu.Lock()
		r.batchesRejected++
		r.mu.Unlock()

		metrics.BatchRejectedInc("chain_not_allowed")

		return fmt.Errorf("%w: %d", ErrChainNotAllowed, batch.ChainID())
	}

	return nil
}

// claim writes the batch id to the ledger before any processing, so two
// concurrent deliveries of the same batch cannot both get through.
func (r *Reactor) claim(ctx context.Context, batch *chain.EventBatch) error {
	if r.ledger == nil || batch.BatchID == "" {
		return nil
	}

	claimed, err := r.ledger.MarkProcessed(ctx, &store.ProcessedBatch{
		BatchID:    batch.BatchID,
		ChainID:    batch.ChainID(),
		EventCount: len(batch.Transactions),
		MaxHeight:  batch.MaxBlock(),
	})
	if err != nil {
		return fmt.Errorf("failed to claim batch: %w", err)
	}

	if !claimed {
		r.mu.Lock()
		r.batchesDuplicate++
		r.mu.Unlock()

		metrics.BatchRejectedInc("duplicate")

		return fmt.Errorf("%w: %s", ErrDuplicateBatch, batch.BatchID)
	}

	return nil
}

// divert hands a reorg signal to the coordinator. Reorg batches skip the
// dedup ledger: compensation is idempotent, and claiming a signal that is
// then rejected mid-rollback would block its redelivery.
func (r *Reactor) divert(ctx context.Context, batch *chain.EventBatch) error {
	sig, err := chain.NewReorgSignal(batch)
	if err != nil {
		metrics.BatchRejectedInc("invalid_reorg")

		return err
	}

	r.mu.Lock()
	r.reorgsDiverted++
	r.mu.Unlock()

	r.log.Infow("reorg signal diverted",
		"batch_id", batch.BatchID,
		"rollback_height", sig.RollbackHeight,
		"new_height", sig.NewHeight,
	)

	if _, err := r.coordinator.HandleReorg(ctx, sig); err != nil {
		var inProgress *reorg.RollbackInProgressError
		if errors.As(err, &inProgress) {
			// Drop the signal; the indexer redelivers it.
			r.log.Warnw("reorg signal dropped",
				"rollback_height", sig.RollbackHeight,
				"error", err,
			)

			return err
		}

		return fmt.Errorf("rollback failed: %w", err)
	}

	return nil
}

func (r *Reactor) noteBatch(processed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batchesAccepted++
	r.eventsProcessed += uint64(processed)
	r.eventsFailed += uint64(failed)
}
