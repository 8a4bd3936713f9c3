package chain

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBatch = `{
  "batch_id": "batch-1",
  "block_identifier": {"index": 100, "hash": "0x00000000000000000000000000000000000000000000000000000000000000aa"},
  "parent_block_identifier": {"index": 99, "hash": "0x00000000000000000000000000000000000000000000000000000000000000a9"},
  "transactions": [
    {
      "transaction_hash": "0x0000000000000000000000000000000000000000000000000000000000000001",
      "operations": [
        {
          "type": "contract_call",
          "contract_call": {
            "contract_address": "0x000000000000000000000000000000000000dEaD",
            "method": "mint",
            "args": ["U1", "B1", "Pro"]
          }
        }
      ]
    }
  ],
  "metadata": {"position": 42, "chain_id": 137}
}`

func TestDecodeBatch(t *testing.T) {
	t.Parallel()

	batch, err := DecodeBatch(strings.NewReader(sampleBatch))
	require.NoError(t, err)

	assert.Equal(t, "batch-1", batch.BatchID)
	assert.Equal(t, uint64(100), batch.Block.Index)
	assert.Equal(t, uint64(99), batch.ParentBlock.Index)
	require.Len(t, batch.Transactions, 1)

	tx := batch.Transactions[0]
	require.Len(t, tx.Operations, 1)
	op := tx.Operations[0]
	assert.Equal(t, OpContractCall, op.Type)
	require.NotNil(t, op.ContractCall)
	assert.Equal(t, "mint", op.ContractCall.Method)
	assert.Equal(t, []any{"U1", "B1", "Pro"}, op.ContractCall.Args)

	assert.Equal(t, uint64(137), batch.ChainID())
	assert.Equal(t, int64(42), batch.EventTimestamp())
	assert.False(t, batch.IsReorgSignal())
}

func TestDecodeBatch_Malformed(t *testing.T) {
	t.Parallel()

	_, err := DecodeBatch(strings.NewReader(`{"block_identifier": [1,2,3]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed batch payload")
}

func TestEventBatch_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*EventBatch)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(*EventBatch) {},
			wantErr: "",
		},
		{
			name: "empty block hash",
			mutate: func(b *EventBatch) {
				b.Block.Hash = common.Hash{}
			},
			wantErr: "block_identifier.hash",
		},
		{
			name: "empty transaction hash",
			mutate: func(b *EventBatch) {
				b.Transactions = append(b.Transactions, Transaction{})
			},
			wantErr: "transaction_hash",
		},
		{
			name: "rollback above own block",
			mutate: func(b *EventBatch) {
				b.RollbackTo = &BlockIdentifier{Index: 200, Hash: common.HexToHash("0x2")}
			},
			wantErr: "rollback_to.index",
		},
		{
			name: "zero transactions is fine",
			mutate: func(b *EventBatch) {
				b.Transactions = nil
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			batch := &EventBatch{
				Block:       BlockIdentifier{Index: 100, Hash: common.HexToHash("0xaa")},
				ParentBlock: BlockIdentifier{Index: 99, Hash: common.HexToHash("0xa9")},
				Transactions: []Transaction{
					{Hash: common.HexToHash("0x1")},
				},
			}
			tt.mutate(batch)

			err := batch.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				var invalidErr *InvalidBatchError
				require.ErrorAs(t, err, &invalidErr)
			}
		})
	}
}

func TestEventBatch_IsReorgSignal(t *testing.T) {
	t.Parallel()

	base := EventBatch{
		Block: BlockIdentifier{Index: 100, Hash: common.HexToHash("0xaa")},
	}

	t.Run("plain batch", func(t *testing.T) {
		t.Parallel()

		b := base
		assert.False(t, b.IsReorgSignal())
	})

	t.Run("explicit marker", func(t *testing.T) {
		t.Parallel()

		b := base
		b.Reorg = true
		assert.True(t, b.IsReorgSignal())
	})

	t.Run("rollback_to below own block", func(t *testing.T) {
		t.Parallel()

		b := base
		b.RollbackTo = &BlockIdentifier{Index: 50, Hash: common.HexToHash("0x32")}
		assert.True(t, b.IsReorgSignal())
	})

	t.Run("rollback_to equal to own block", func(t *testing.T) {
		t.Parallel()

		b := base
		b.RollbackTo = &BlockIdentifier{Index: 100, Hash: common.HexToHash("0xaa")}
		assert.False(t, b.IsReorgSignal())
	})
}

func TestNewReorgSignal(t *testing.T) {
	t.Parallel()

	t.Run("from rollback_to reference", func(t *testing.T) {
		t.Parallel()

		batch := &EventBatch{
			Block:      BlockIdentifier{Index: 100, Hash: common.HexToHash("0xaa")},
			RollbackTo: &BlockIdentifier{Index: 50, Hash: common.HexToHash("0x32")},
			Transactions: []Transaction{
				{Hash: common.HexToHash("0x1")},
				{Hash: common.HexToHash("0x2")},
			},
			Metadata: BatchMetadata{ChainID: 137},
		}

		sig, err := NewReorgSignal(batch)
		require.NoError(t, err)
		assert.Equal(t, uint64(50), sig.RollbackHeight)
		assert.Equal(t, common.HexToHash("0x32"), sig.RollbackHash)
		assert.Equal(t, uint64(100), sig.NewHeight)
		assert.Equal(t, uint64(137), sig.ChainID)
		assert.Equal(t, []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2")}, sig.AffectedTxs)
	})

	t.Run("explicit marker falls back to parent", func(t *testing.T) {
		t.Parallel()

		batch := &EventBatch{
			Block:       BlockIdentifier{Index: 100, Hash: common.HexToHash("0xaa")},
			ParentBlock: BlockIdentifier{Index: 99, Hash: common.HexToHash("0xa9")},
			Reorg:       true,
		}

		sig, err := NewReorgSignal(batch)
		require.NoError(t, err)
		assert.Equal(t, uint64(99), sig.RollbackHeight)
		assert.Empty(t, sig.AffectedTxs)
	})

	t.Run("not a reorg batch", func(t *testing.T) {
		t.Parallel()

		batch := &EventBatch{
			Block: BlockIdentifier{Index: 100, Hash: common.HexToHash("0xaa")},
		}

		_, err := NewReorgSignal(batch)
		require.Error(t, err)

		var invalidErr *InvalidBatchError
		require.ErrorAs(t, err, &invalidErr)
	})
}
