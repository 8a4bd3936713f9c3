package invalidation

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type tagEntry struct {
	height uint64
	txHash common.Hash
}

// TagIndex records the chain provenance of cached keys: which block height
// and transaction a key was derived from. The reorg coordinator uses it to
// find every key whose source is no longer canonical. Keys without a tag
// are simply unknown to it.
type TagIndex struct {
	mu    sync.Mutex
	byKey map[string]tagEntry
}

func NewTagIndex() *TagIndex {
	return &TagIndex{byKey: make(map[string]tagEntry)}
}

// Tag records (or refreshes) the provenance of key.
func (t *TagIndex) Tag(key string, height uint64, txHash common.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byKey[key] = tagEntry{height: height, txHash: txHash}
}

// Forget drops the tags for the given keys.
func (t *TagIndex) Forget(keys ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, key := range keys {
		delete(t.byKey, key)
	}
}

// CollectAbove removes and returns every key tagged above the given height
// or belonging to one of the affected transactions.
func (t *TagIndex) CollectAbove(height uint64, affected []common.Hash) []string {
	affectedSet := make(map[common.Hash]struct{}, len(affected))
	for _, h := range affected {
		affectedSet[h] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var keys []string

	for key, entry := range t.byKey {
		_, hit := affectedSet[entry.txHash]
		if entry.height > height || hit {
			keys = append(keys, key)
			delete(t.byKey, key)
		}
	}

	return keys
}

// Len returns the number of tagged keys.
func (t *TagIndex) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.byKey)
}
