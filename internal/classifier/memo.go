package classifier

import (
	"container/list"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/ChainReactor/internal/event"
)

// memoKey identifies one classified transaction.
type memoKey struct {
	height uint64
	txHash common.Hash
}

type memoEntry struct {
	key       memoKey
	events    []*event.DomainEvent
	expiresAt time.Time
}

// resultMemo caches classification results per (block height, transaction
// hash) pair with a short TTL, so that a batch examined by several rule
// filters in quick succession is only extracted once. LRU eviction keeps it
// bounded.
type resultMemo struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[memoKey]*list.Element
	order    *list.List
	nowFn    func() time.Time

	hits   int64
	misses int64
}

func newResultMemo(capacity int, ttl time.Duration) *resultMemo {
	if capacity < 1 {
		capacity = 1
	}

	return &resultMemo{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[memoKey]*list.Element, capacity),
		order:    list.New(),
		nowFn:    time.Now,
	}
}

func (m *resultMemo) get(height uint64, txHash common.Hash) ([]*event.DomainEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[memoKey{height: height, txHash: txHash}]
	if !ok {
		m.misses++
		return nil, false
	}

	e := elem.Value.(*memoEntry)
	if m.nowFn().After(e.expiresAt) {
		m.removeElement(elem)
		m.misses++
		return nil, false
	}

	m.order.MoveToFront(elem)
	m.hits++

	return e.events, true
}

func (m *resultMemo) put(height uint64, txHash common.Hash, events []*event.DomainEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoKey{height: height, txHash: txHash}

	if elem, ok := m.items[key]; ok {
		m.order.MoveToFront(elem)
		e := elem.Value.(*memoEntry)
		e.events = events
		e.expiresAt = m.nowFn().Add(m.ttl)

		return
	}

	if m.order.Len() >= m.capacity {
		m.evictOldest()
	}

	elem := m.order.PushFront(&memoEntry{
		key:       key,
		events:    events,
		expiresAt: m.nowFn().Add(m.ttl),
	})
	m.items[key] = elem
}

func (m *resultMemo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.order.Len()
}

func (m *resultMemo) stats() (hits, misses int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hits, m.misses
}

func (m *resultMemo) evictOldest() {
	if elem := m.order.Back(); elem != nil {
		m.removeElement(elem)
	}
}

func (m *resultMemo) removeElement(elem *list.Element) {
	m.order.Remove(elem)
	delete(m.items, elem.Value.(*memoEntry).key)
}
