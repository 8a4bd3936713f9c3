package classifier

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainReactor/internal/chain"
	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

func newTestClassifier(t *testing.T, cfg config.ClassifierConfig) *Classifier {
	t.Helper()

	cfg.ApplyDefaults()

	return New(cfg, logger.NewNopLogger())
}

func callBatch(height uint64, txHash common.Hash, method string, args ...any) *chain.EventBatch {
	return &chain.EventBatch{
		Block:       chain.BlockIdentifier{Index: height, Hash: common.HexToHash("0xbb")},
		ParentBlock: chain.BlockIdentifier{Index: height - 1, Hash: common.HexToHash("0xba")},
		Transactions: []chain.Transaction{
			{
				Hash: txHash,
				Operations: []chain.Operation{
					{
						Type: chain.OpContractCall,
						ContractCall: &chain.ContractCall{
							ContractAddress: common.HexToAddress("0xdead"),
							Method:          method,
							Args:            args,
						},
					},
				},
			},
		},
		Metadata: chain.BatchMetadata{Position: 7},
	}
}

func TestClassifier_Classify_MintCall(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{})

	batch := callBatch(100, common.HexToHash("0x1"), "mint", "U1", "B1", "Pro")

	events := c.Classify(batch)
	require.Len(t, events, 1)

	evt := events[0]
	assert.Equal(t, event.KindBadgeMinted, evt.Kind)
	assert.Equal(t, uint64(100), evt.Height)
	assert.Equal(t, common.HexToHash("0x1"), evt.TxHash)
	assert.Equal(t, "mint", evt.Method)
	assert.NotEqual(t, "", evt.ID.String())

	require.NotNil(t, evt.Badge)
	assert.Equal(t, "U1", evt.Badge.Recipient)
	assert.Equal(t, "B1", evt.Badge.BadgeID)
	assert.Equal(t, "Pro", evt.Badge.Name)
	assert.Equal(t, DefaultBadgeCategory, evt.Badge.Category)
	assert.Equal(t, DefaultBadgeLevel, evt.Badge.Level)
}

func TestClassifier_Classify_Defaults(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{})

	txHash := common.HexToHash("0xabcdef")
	batch := callBatch(100, txHash, "mint")

	events := c.Classify(batch)
	require.Len(t, events, 1)

	badge := events[0].Badge
	require.NotNil(t, badge)
	assert.Equal(t, DefaultRecipient, badge.Recipient)
	assert.Equal(t, "badge-"+txHash.Hex()[2:10], badge.BadgeID)
	assert.Equal(t, DefaultBadgeName, badge.Name)
	assert.Equal(t, DefaultBadgeCategory, badge.Category)
	assert.Equal(t, DefaultBadgeLevel, badge.Level)
}

func TestClassifier_Classify_MethodVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		kind   event.Kind
	}{
		{"mint", event.KindBadgeMinted},
		{"Mint-Badge", event.KindBadgeMinted},
		{"nft_mint", event.KindBadgeMinted},
		{"revoke", event.KindBadgeRevoked},
		{"burn-badge", event.KindBadgeRevoked},
		{"update-metadata", event.KindBadgeMetadataUpdated},
		{"SET_METADATA", event.KindBadgeMetadataUpdated},
		{"create-community", event.KindCommunityCreated},
		{"register_community", event.KindCommunityCreated},
	}

	c := newTestClassifier(t, config.ClassifierConfig{})

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()

			// Distinct tx hashes keep the memo out of the way.
			batch := callBatch(10, common.BytesToHash([]byte(tt.method)), tt.method, "actor", "subject")

			events := c.Classify(batch)
			require.Len(t, events, 1)
			assert.Equal(t, tt.kind, events[0].Kind)
		})
	}
}

func TestClassifier_Classify_RevokeAndMetadataAndCommunity(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{})

	revoked := c.Classify(callBatch(11, common.HexToHash("0x3"), "revoke", "U2", "B2", "expired"))
	require.Len(t, revoked, 1)
	require.NotNil(t, revoked[0].Badge)
	assert.Equal(t, "U2", revoked[0].Badge.Recipient)
	assert.Equal(t, "B2", revoked[0].Badge.BadgeID)
	assert.Equal(t, "expired", revoked[0].Badge.Reason)

	updated := c.Classify(callBatch(12, common.HexToHash("0x4"), "update-metadata", "B3", "ipfs://x", "U3"))
	require.Len(t, updated, 1)
	require.NotNil(t, updated[0].Badge)
	assert.Equal(t, "B3", updated[0].Badge.BadgeID)
	assert.Equal(t, "ipfs://x", updated[0].Badge.MetadataURI)
	assert.Equal(t, "U3", updated[0].Badge.Recipient)

	created := c.Classify(callBatch(13, common.HexToHash("0x5"), "create-community", "C1", "Gophers", "U4"))
	require.Len(t, created, 1)
	require.NotNil(t, created[0].Community)
	assert.Equal(t, "C1", created[0].Community.CommunityID)
	assert.Equal(t, "Gophers", created[0].Community.Name)
	assert.Equal(t, "U4", created[0].Community.Creator)
}

func TestClassifier_Classify_ExtraMethods(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{
		ExtraMethods: map[string][]string{
			"badge_minted": {"award-badge"},
			"bogus_kind":   {"whatever"},
		},
	})

	events := c.Classify(callBatch(14, common.HexToHash("0x6"), "award-badge", "U5", "B5"))
	require.Len(t, events, 1)
	assert.Equal(t, event.KindBadgeMinted, events[0].Kind)

	assert.Empty(t, c.Classify(callBatch(15, common.HexToHash("0x7"), "whatever")))
}

func TestClassifier_Classify_LogTopicFallback(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{})

	value, err := json.Marshal(map[string]any{
		"recipient": "U6",
		"badge_id":  "B6",
		"name":      "Night Owl",
		"level":     3,
	})
	require.NoError(t, err)

	batch := &chain.EventBatch{
		Block: chain.BlockIdentifier{Index: 20, Hash: common.HexToHash("0xbb")},
		Transactions: []chain.Transaction{
			{
				Hash: common.HexToHash("0x8"),
				Operations: []chain.Operation{
					{
						Type: chain.OpLog,
						Events: []chain.LogEvent{
							{Topic: "unrelated-topic"},
							{Topic: "BadgeMinted", Value: value},
						},
					},
				},
			},
		},
	}

	events := c.Classify(batch)
	require.Len(t, events, 1)

	evt := events[0]
	assert.Equal(t, event.KindBadgeMinted, evt.Kind)
	require.NotNil(t, evt.Badge)
	assert.Equal(t, "U6", evt.Badge.Recipient)
	assert.Equal(t, "B6", evt.Badge.BadgeID)
	assert.Equal(t, "Night Owl", evt.Badge.Name)
	assert.Equal(t, 3, evt.Badge.Level)
}

func TestClassifier_Classify_ContractCallBeatsLogTopic(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{})

	batch := &chain.EventBatch{
		Block: chain.BlockIdentifier{Index: 21, Hash: common.HexToHash("0xbb")},
		Transactions: []chain.Transaction{
			{
				Hash: common.HexToHash("0x9"),
				Operations: []chain.Operation{
					{
						Type:   chain.OpLog,
						Events: []chain.LogEvent{{Topic: "CommunityCreated"}},
					},
					{
						Type: chain.OpContractCall,
						ContractCall: &chain.ContractCall{
							Method: "revoke",
							Args:   []any{"U7", "B7"},
						},
					},
				},
			},
		},
	}

	events := c.Classify(batch)
	require.Len(t, events, 1)
	assert.Equal(t, event.KindBadgeRevoked, events[0].Kind)
}

func TestClassifier_Classify_EmptyAndUnmatched(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{})

	assert.Empty(t, c.Classify(nil))
	assert.Empty(t, c.Classify(&chain.EventBatch{
		Block: chain.BlockIdentifier{Index: 1, Hash: common.HexToHash("0xbb")},
	}))
	assert.Empty(t, c.Classify(callBatch(2, common.HexToHash("0xa"), "transfer", "from", "to")))
}

func TestClassifier_Classify_MultipleTransactions(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{})

	batch := callBatch(30, common.HexToHash("0xb"), "mint", "U8", "B8")
	batch.Transactions = append(batch.Transactions, chain.Transaction{
		Hash: common.HexToHash("0xc"),
		Operations: []chain.Operation{
			{
				Type: chain.OpContractCall,
				ContractCall: &chain.ContractCall{
					Method: "create-community",
					Args:   []any{"C2", "Runners", "U8"},
				},
			},
		},
	})

	events := c.Classify(batch)
	require.Len(t, events, 2)
	assert.Equal(t, event.KindBadgeMinted, events[0].Kind)
	assert.Equal(t, event.KindCommunityCreated, events[1].Kind)
}

func TestClassifier_Classify_Memoized(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, config.ClassifierConfig{
		MemoSize: 16,
		MemoTTL:  internalcommon.NewDuration(time.Minute),
	})

	batch := callBatch(40, common.HexToHash("0xd"), "mint", "U9", "B9")

	first := c.Classify(batch)
	second := c.Classify(batch)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)

	hits, misses := c.MemoStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestTopicKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic   string
		want    event.Kind
		matched bool
	}{
		{"BadgeMinted", event.KindBadgeMinted, true},
		{"badge.revoked", event.KindBadgeRevoked, true},
		{"TokenBurned", event.KindBadgeRevoked, true},
		{"MetadataUpdated", event.KindBadgeMetadataUpdated, true},
		{"badge-metadata-after-mint", event.KindBadgeMetadataUpdated, true},
		{"CommunityCreated", event.KindCommunityCreated, true},
		{"community.creation", event.KindCommunityCreated, true},
		{"Transfer", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			t.Parallel()

			kind, ok := topicKind(tt.topic)
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestArgHelpers(t *testing.T) {
	t.Parallel()

	args := []any{"alpha", float64(7), nil, "", true}

	assert.Equal(t, "alpha", argString(args, 0, "x"))
	assert.Equal(t, "7", argString(args, 1, "x"))
	assert.Equal(t, "x", argString(args, 2, "x"))
	assert.Equal(t, "x", argString(args, 3, "x"))
	assert.Equal(t, "true", argString(args, 4, "x"))
	assert.Equal(t, "x", argString(args, 9, "x"))

	assert.Equal(t, 7, argInt(args, 1, 1))
	assert.Equal(t, 1, argInt(args, 0, 1))
	assert.Equal(t, 1, argInt(args, 9, 1))
	assert.Equal(t, 5, argInt([]any{"5"}, 0, 1))
}
