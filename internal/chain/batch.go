package chain

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
)

// OperationType discriminates the payload carried by an Operation.
const (
	OpContractCall = "contract_call"
	OpLog          = "log"
)

// BlockIdentifier points at one block by height and hash.
type BlockIdentifier struct {
	Index uint64      `json:"index"`
	Hash  common.Hash `json:"hash"`
}

// ContractCall is a decoded contract invocation with positional arguments.
type ContractCall struct {
	ContractAddress common.Address `json:"contract_address"`
	Method          string         `json:"method"`
	Args            []any          `json:"args,omitempty"`
}

// LogEvent is a raw log entry attached to an operation.
type LogEvent struct {
	Topic string          `json:"topic"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Operation is either a contract call or a bag of log entries.
type Operation struct {
	Type         string        `json:"type"`
	ContractCall *ContractCall `json:"contract_call,omitempty"`
	Events       []LogEvent    `json:"events,omitempty"`
}

// Transaction groups the operations observed in one chain transaction.
type Transaction struct {
	Hash       common.Hash `json:"transaction_hash"`
	Operations []Operation `json:"operations"`
}

// BatchMetadata carries ordering and provenance information for a batch.
// Position is a monotonic counter assigned by the indexer and doubles as
// the event timestamp when Timestamp is absent.
type BatchMetadata struct {
	Position  uint64 `json:"position"`
	ChainID   uint64 `json:"chain_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// EventBatch is one delivery from the external indexer, scoped to a single
// block. Immutable once decoded. A batch that carries a RollbackTo reference
// pointing at a different block than its own (or an explicit Reorg marker)
// is a reorg signal rather than regular event data.
type EventBatch struct {
	BatchID      string           `json:"batch_id,omitempty"`
	Block        BlockIdentifier  `json:"block_identifier"`
	ParentBlock  BlockIdentifier  `json:"parent_block_identifier"`
	Transactions []Transaction    `json:"transactions"`
	Metadata     BatchMetadata    `json:"metadata"`
	RollbackTo   *BlockIdentifier `json:"rollback_to,omitempty"`
	Reorg        bool             `json:"reorg,omitempty"`
}

// DecodeBatch reads and validates one EventBatch from r.
func DecodeBatch(r io.Reader) (*EventBatch, error) {
	var batch EventBatch

	dec := json.NewDecoder(r)
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("malformed batch payload: %w", err)
	}

	if err := batch.Validate(); err != nil {
		return nil, err
	}

	return &batch, nil
}

// Validate checks the structural requirements of a batch. Content-level
// defects (missing call arguments etc.) are not errors, the classifier
// degrades those to defaults.
func (b *EventBatch) Validate() error {
	if b.Block.Hash == (common.Hash{}) {
		return &InvalidBatchError{Field: "block_identifier.hash", Reason: "must not be empty"}
	}

	for i, tx := range b.Transactions {
		if tx.Hash == (common.Hash{}) {
			return &InvalidBatchError{
				Field:  fmt.Sprintf("transactions[%d].transaction_hash", i),
				Reason: "must not be empty",
			}
		}
	}

	if b.RollbackTo != nil && b.RollbackTo.Index > b.Block.Index {
		return &InvalidBatchError{Field: "rollback_to.index", Reason: "must not exceed the batch's own block index"}
	}

	return nil
}

// IsReorgSignal reports whether this batch declares that history above some
// height is no longer canonical.
func (b *EventBatch) IsReorgSignal() bool {
	if b.Reorg {
		return true
	}
	if b.RollbackTo == nil {
		return false
	}
	return b.RollbackTo.Index != b.Block.Index || b.RollbackTo.Hash != b.Block.Hash
}

// EventTimestamp returns the wall-clock timestamp for events in this batch,
// falling back to the indexer's position counter when no timestamp was sent.
func (b *EventBatch) EventTimestamp() int64 {
	if b.Metadata.Timestamp != 0 {
		return b.Metadata.Timestamp
	}
	return int64(b.Metadata.Position)
}

// ChainID returns the chain the batch belongs to, defaulting to mainnet (1).
func (b *EventBatch) ChainID() uint64 {
	if b.Metadata.ChainID != 0 {
		return b.Metadata.ChainID
	}
	return 1
}

// MaxBlock returns the batch's own block height.
func (b *EventBatch) MaxBlock() uint64 {
	return b.Block.Index
}
