package store

import (
	"context"
	"sync"
	"time"

	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// batchRetention is how long processed-batch ids are kept for redelivery
// detection before the janitor drops them.
const batchRetention = 24 * time.Hour

// Janitor prunes storage that has aged out: journal entries for blocks
// past the finality depth, which no reorg can reach anymore, and ledger
// rows for batches old enough that the indexer will not redeliver them.
type Janitor struct {
	log     *logger.Logger
	journal *Journal
	batches *BatchLedger
	cfg     config.ReorgConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor over the journal and batch ledger.
func NewJanitor(journal *Journal, batches *BatchLedger, cfg config.ReorgConfig, log *logger.Logger) *Janitor {
	return &Janitor{
		log:     log.WithComponent(internalcommon.ComponentMaintenance),
		journal: journal,
		batches: batches,
		cfg:     cfg,
	}
}

// Start begins the background prune loop.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.run(ctx)

	j.log.Infof("Journal janitor started - interval: %v, finality depth: %d",
		j.cfg.PruneInterval.Duration, j.cfg.FinalityDepth)
}

// Stop halts the prune loop and waits for it to finish.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	j.wg.Wait()
	j.log.Info("Journal janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.PruneInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := j.Sweep(ctx); err != nil {
				j.log.Warnf("Janitor sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs one prune pass. The finality cutoff is derived from the
// highest journaled height rather than a chain client: anything more than
// FinalityDepth blocks below the newest journaled block is final.
func (j *Janitor) Sweep(ctx context.Context) error {
	tip, err := j.journal.MaxHeight(ctx)
	if err != nil {
		return err
	}

	if tip > j.cfg.FinalityDepth {
		finalized := tip - j.cfg.FinalityDepth
		pruned, err := j.journal.PruneThrough(ctx, finalized)
		if err != nil {
			return err
		}
		if pruned > 0 {
			j.log.Infof("Pruned %d finalized journal entries at or below height %d", pruned, finalized)
		}
	}

	dropped, err := j.batches.PruneBefore(ctx, time.Now().UTC().Add(-batchRetention))
	if err != nil {
		return err
	}
	if dropped > 0 {
		j.log.Debugf("Dropped %d processed-batch records older than %v", dropped, batchRetention)
	}

	return nil
}
