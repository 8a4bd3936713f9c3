package cache

import (
	"fmt"

	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// Store backends selectable through configuration.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendBigCache = "bigcache"
)

// NewStoreFromConfig builds the cache store the configuration names.
func NewStoreFromConfig(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(BackendMemory, cfg.Capacity, cfg.DefaultTTL.Duration), nil

	case BackendRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("cache backend %q requires a redis section", cfg.Backend)
		}

		return NewRedisStore(*cfg.Redis, cfg.DefaultTTL.Duration)

	case BackendBigCache:
		bcCfg := config.BigCacheConfig{}
		if cfg.BigCache != nil {
			bcCfg = *cfg.BigCache
		}
		bcCfg.ApplyDefaults()

		return NewBigCacheStore(bcCfg, cfg.DefaultTTL.Duration)

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
