package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// Maintenance is the SQLite upkeep the reactor runs alongside the
// pipeline: periodic WAL checkpoints and VACUUM passes, serialized
// against writers through an operation gate.
type Maintenance interface {
	// Start launches periodic upkeep when enabled in the configuration.
	Start(ctx context.Context) error
	// Stop halts periodic upkeep and waits for an in-flight pass.
	Stop() error
	// AcquireOperationLock takes the shared side of the maintenance gate.
	// The returned release must be called once the database work is done.
	AcquireOperationLock() func()
	// RunNow performs one maintenance pass immediately.
	RunNow(ctx context.Context) error
	// Runs reports how many maintenance passes have executed.
	Runs() uint64
}

// NoOpMaintenance satisfies Maintenance without doing anything. It stands
// in when maintenance is not configured.
type NoOpMaintenance struct{}

func (m *NoOpMaintenance) Start(ctx context.Context) error  { return nil }
func (m *NoOpMaintenance) Stop() error                      { return nil }
func (m *NoOpMaintenance) RunNow(ctx context.Context) error { return nil }
func (m *NoOpMaintenance) Runs() uint64                     { return 0 }

func (m *NoOpMaintenance) AcquireOperationLock() func() {
	return func() {}
}

// MaintenanceCoordinator serializes SQLite upkeep against pipeline writes.
// Writers, the reorg compensation loop included, hold the read side of the
// gate; a maintenance pass holds the write side, so a checkpoint or VACUUM
// never interleaves with a compensation batch.
type MaintenanceCoordinator struct {
	db     *sql.DB
	dbPath string
	config config.MaintenanceConfig
	log    *logger.Logger

	opGate sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runs atomic.Uint64
}

// NewMaintenanceCoordinator builds the coordinator, or a no-op stand-in
// when cfg is nil.
func NewMaintenanceCoordinator(
	dbPath string,
	db *sql.DB,
	cfg *config.MaintenanceConfig,
	log *logger.Logger,
) Maintenance {
	if cfg == nil {
		return &NoOpMaintenance{}
	}

	return newMaintenanceCoordinator(dbPath, db, *cfg, log)
}

func newMaintenanceCoordinator(
	dbPath string,
	db *sql.DB,
	cfg config.MaintenanceConfig,
	log *logger.Logger,
) *MaintenanceCoordinator {
	return &MaintenanceCoordinator{
		db:     db,
		dbPath: dbPath,
		config: cfg,
		log:    log.WithComponent("db-maintenance"),
	}
}

// Start runs a startup pass when configured and launches the periodic
// worker. It is a no-op when maintenance is disabled.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.log.Info("Database maintenance is disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.config.VacuumOnStartup {
		m.log.Info("Running startup maintenance pass")
		if err := m.RunNow(runCtx); err != nil {
			m.log.Warnf("Startup maintenance pass failed: %v", err)
		}
	}

	m.wg.Add(1)
	go m.loop(runCtx, m.config.CheckInterval.Duration)

	m.log.Infof("Database maintenance started - interval: %v, checkpoint mode: %s",
		m.config.CheckInterval.Duration, m.config.WALCheckpointMode)

	return nil
}

// Stop cancels the periodic worker and waits for any pass in flight.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cancel == nil {
		return nil
	}

	m.cancel()
	m.wg.Wait()
	m.log.Info("Database maintenance stopped")

	return nil
}

func (m *MaintenanceCoordinator) loop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := m.RunNow(ctx); err != nil {
				m.log.Warnf("Periodic maintenance pass failed: %v", err)
			}
		}
	}
}

// RunNow performs one pass: WAL checkpoint, then VACUUM. The pass holds
// the write side of the gate for its whole duration.
func (m *MaintenanceCoordinator) RunNow(ctx context.Context) error {
	start := time.Now().UTC()

	m.opGate.Lock()
	defer m.opGate.Unlock()

	// The gate may have been held by a long compensation batch; the
	// reactor could have shut down in the meantime.
	if err := ctx.Err(); err != nil {
		return err
	}

	sizeBefore, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnf("Failed to measure database size: %v", err)
	}

	var passErr error

	if err := m.checkpointWAL(); err != nil {
		m.log.Errorf("WAL checkpoint failed: %v", err)
		passErr = fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	if err := Vacuum(m.db); err != nil {
		m.log.Warnf("VACUUM failed: %v", err)
		if passErr == nil {
			passErr = err
		}
	}

	m.runs.Add(1)

	duration := time.Since(start)
	MaintenancePassObserved(duration, passErr)

	if passErr != nil {
		m.log.Warnf("Maintenance pass completed with errors in %v: %v", duration, passErr)
		return passErr
	}

	m.log.Infof("Maintenance pass completed in %v", duration)

	if sizeAfter, err := DBTotalSize(m.dbPath); err == nil {
		reclaimed := sizeBefore - sizeAfter
		DBFootprintObserved(sizeAfter, reclaimed)

		if reclaimed > 0 {
			m.log.Infof("Maintenance reclaimed %d MB", common.BytesToMB(uint64(reclaimed)))
		}
	}

	return nil
}

// checkpointWAL moves WAL frames back into the main database file using
// the configured checkpoint mode. Databases not in WAL mode are skipped.
func (m *MaintenanceCoordinator) checkpointWAL() error {
	var mode string
	if err := m.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}

	if !strings.EqualFold(mode, "wal") {
		m.log.Debugf("Journal mode is %s, nothing to checkpoint", mode)
		return nil
	}

	var busy, logFrames, moved int
	checkpoint := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.config.WALCheckpointMode)
	if err := m.db.QueryRow(checkpoint).Scan(&busy, &logFrames, &moved); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	WALCheckpointObserved(m.config.WALCheckpointMode)
	m.log.Infof("WAL checkpoint (%s): %d of %d frames moved, %d busy",
		m.config.WALCheckpointMode, moved, logFrames, busy)

	if busy > 0 {
		m.log.Warnf("WAL checkpoint left %d busy frames in place", busy)
	}

	return nil
}

// AcquireOperationLock takes the shared side of the maintenance gate, so
// database work can proceed concurrently with other writers but never
// under a running VACUUM.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opGate.RLock()
	return m.opGate.RUnlock
}

// Runs reports how many maintenance passes have executed since startup.
func (m *MaintenanceCoordinator) Runs() uint64 {
	return m.runs.Load()
}
