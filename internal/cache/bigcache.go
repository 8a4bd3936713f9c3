package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// BigCacheStore is a Store over allegro/bigcache. Expiry follows bigcache's
// life-window policy, so the per-call TTL is ignored; an auxiliary key set
// is maintained alongside the cache because bigcache exposes no key listing,
// and pattern invalidation needs one. The set self-heals: keys bigcache has
// evicted on its own are dropped the next time they are listed.
type BigCacheStore struct {
	name  string
	cache *bigcache.BigCache

	mu     sync.Mutex
	keySet map[string]struct{}
}

// NewBigCacheStore builds a bigcache-backed store. The life window comes
// from defaultTTL, falling back to ten minutes when unset.
func NewBigCacheStore(cfg config.BigCacheConfig, defaultTTL time.Duration) (*BigCacheStore, error) {
	life := defaultTTL
	if life <= 0 {
		life = 10 * time.Minute
	}

	bcCfg := bigcache.DefaultConfig(life)
	bcCfg.Shards = cfg.Shards
	bcCfg.HardMaxCacheSize = int(cfg.MaxSizeMB)

	cache, err := bigcache.New(context.Background(), bcCfg)
	if err != nil {
		return nil, fmt.Errorf("creating bigcache: %w", err)
	}

	return &BigCacheStore{
		name:   "bigcache",
		cache:  cache,
		keySet: make(map[string]struct{}),
	}, nil
}

func (s *BigCacheStore) Name() string {
	return s.name
}

func (s *BigCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, err := s.cache.Get(key)
	if err == bigcache.ErrEntryNotFound {
		s.forget(key)
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("bigcache get %q: %w", key, err)
	}

	return value, true, nil
}

// Set stores value under key. The ttl argument is accepted for interface
// parity but entries expire on the store-wide life window.
func (s *BigCacheStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if err := s.cache.Set(key, value); err != nil {
		return fmt.Errorf("bigcache set %q: %w", key, err)
	}

	s.mu.Lock()
	s.keySet[key] = struct{}{}
	s.mu.Unlock()

	return nil
}

func (s *BigCacheStore) Delete(_ context.Context, keys ...string) (int, error) {
	deleted := 0

	for _, key := range keys {
		err := s.cache.Delete(key)

		s.forget(key)

		if err == bigcache.ErrEntryNotFound {
			continue
		}

		if err != nil {
			return deleted, fmt.Errorf("bigcache delete %q: %w", key, err)
		}

		deleted++
	}

	return deleted, nil
}

func (s *BigCacheStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.keySet))

	for key := range s.keySet {
		if _, err := s.cache.Get(key); err == bigcache.ErrEntryNotFound {
			delete(s.keySet, key)
			continue
		}

		keys = append(keys, key)
	}

	return keys, nil
}

func (s *BigCacheStore) Len(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}

func (s *BigCacheStore) Flush(_ context.Context) error {
	if err := s.cache.Reset(); err != nil {
		return fmt.Errorf("bigcache reset: %w", err)
	}

	s.mu.Lock()
	s.keySet = make(map[string]struct{})
	s.mu.Unlock()

	return nil
}

func (s *BigCacheStore) Close() error {
	return s.cache.Close()
}

func (s *BigCacheStore) forget(key string) {
	s.mu.Lock()
	delete(s.keySet, key)
	s.mu.Unlock()
}
