package reorg

import "fmt"

// RollbackInProgressError is returned when a reorg signal arrives while a
// previous rollback is still being applied. Callers are expected to drop
// the signal and let the indexer redeliver it.
type RollbackInProgressError struct {
	RollbackHeight uint64
}

func (e *RollbackInProgressError) Error() string {
	return fmt.Sprintf("rollback to block %d rejected: another rollback is in progress", e.RollbackHeight)
}

// NewRollbackInProgressError creates a new RollbackInProgressError.
func NewRollbackInProgressError(rollbackHeight uint64) error {
	return &RollbackInProgressError{RollbackHeight: rollbackHeight}
}
