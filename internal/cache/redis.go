package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

const redisScanBatch = 1000

// RedisStore is a Store over a redis database. Every key is namespaced with
// a prefix so that Keys, Len and Flush only ever touch this store's slice of
// the keyspace.
type RedisStore struct {
	name       string
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedisStore dials redis with the configured address and verifies the
// connection with a ping before returning.
func NewRedisStore(cfg config.RedisConfig, defaultTTL time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, defaultTTL), nil
}

// NewRedisStoreWithClient wraps an existing client, taking ownership of it.
func NewRedisStoreWithClient(client *redis.Client, prefix string, defaultTTL time.Duration) *RedisStore {
	return &RedisStore{
		name:       "redis",
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

func (s *RedisStore) Name() string {
	return s.name
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}

	deleted, err := s.client.Del(ctx, prefixed...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}

	return int(deleted), nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	prefixed, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(prefixed))
	for _, key := range prefixed {
		keys = append(keys, strings.TrimPrefix(key, s.prefix))
	}

	return keys, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}

func (s *RedisStore) Flush(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis flush: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// scan walks the full prefixed keyspace with cursor-based SCAN, returning
// the keys still carrying the prefix.
func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		all    []string
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", redisScanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}

		all = append(all, keys...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return all, nil
}
