package chain

import (
	"github.com/ethereum/go-ethereum/common"
)

// ReorgSignal is the derived description of a reorganization: everything
// above RollbackHeight must be undone, and the listed transactions are no
// longer canonical regardless of height.
type ReorgSignal struct {
	ChainID        uint64
	RollbackHeight uint64
	RollbackHash   common.Hash
	NewHeight      uint64
	NewHash        common.Hash
	AffectedTxs    []common.Hash
}

// NewReorgSignal derives a ReorgSignal from a batch that IsReorgSignal.
// Returns an InvalidBatchError when the batch carries no rollback reference.
func NewReorgSignal(b *EventBatch) (*ReorgSignal, error) {
	rollbackTo := b.RollbackTo
	if rollbackTo == nil {
		if !b.Reorg {
			return nil, &InvalidBatchError{Field: "rollback_to", Reason: "missing on a non-reorg batch"}
		}
		// Explicit marker without a reference: roll back to the parent block.
		rollbackTo = &b.ParentBlock
	}

	affected := make([]common.Hash, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		affected = append(affected, tx.Hash)
	}

	return &ReorgSignal{
		ChainID:        b.ChainID(),
		RollbackHeight: rollbackTo.Index,
		RollbackHash:   rollbackTo.Hash,
		NewHeight:      b.Block.Index,
		NewHash:        b.Block.Hash,
		AffectedTxs:    affected,
	}, nil
}
