package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store over a plain map with lazy TTL
// eviction: expired entries are removed when a read or key listing touches
// them, never by a background sweeper. When full, expired entries are swept
// first and the entry closest to expiry is evicted after that.
type MemoryStore struct {
	name       string
	capacity   int
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]memoryEntry

	nowFn func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates a memory-backed store. A capacity below one means
// unbounded; a non-positive defaultTTL stores entries without expiry unless
// Set is given one.
func NewMemoryStore(name string, capacity int, defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		name:       name,
		capacity:   capacity,
		defaultTTL: defaultTTL,
		entries:    make(map[string]memoryEntry),
		nowFn:      time.Now,
	}
}

func (s *MemoryStore) Name() string {
	return s.name
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}

	if s.expired(entry) {
		delete(s.entries, key)
		return nil, false, nil
	}

	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.nowFn().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.capacity > 0 && len(s.entries) >= s.capacity {
		s.sweepExpiredLocked()

		if len(s.entries) >= s.capacity {
			s.evictSoonestLocked()
		}
	}

	s.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0

	for _, key := range keys {
		entry, ok := s.entries[key]
		if !ok {
			continue
		}

		delete(s.entries, key)

		if !s.expired(entry) {
			deleted++
		}
	}

	return deleted, nil
}

func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))

	for key, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, key)
			continue
		}

		keys = append(keys, key)
	}

	return keys, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := 0

	for _, entry := range s.entries {
		if !s.expired(entry) {
			live++
		}
	}

	return live, nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]memoryEntry)

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && s.nowFn().After(entry.expiresAt)
}

func (s *MemoryStore) sweepExpiredLocked() {
	for key, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, key)
		}
	}
}

// evictSoonestLocked drops the entry closest to expiry; entries without an
// expiry are only evicted when everything else is permanent too.
func (s *MemoryStore) evictSoonestLocked() {
	var (
		victim    string
		victimExp time.Time
		found     bool
	)

	for key, entry := range s.entries {
		if !found {
			victim, victimExp, found = key, entry.expiresAt, true
			continue
		}

		switch {
		case victimExp.IsZero() && !entry.expiresAt.IsZero():
			victim, victimExp = key, entry.expiresAt
		case !victimExp.IsZero() && !entry.expiresAt.IsZero() && entry.expiresAt.Before(victimExp):
			victim, victimExp = key, entry.expiresAt
		}
	}

	if found {
		delete(s.entries, victim)
	}
}
