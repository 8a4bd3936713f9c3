package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// RedisChannel publishes each record to a redis pub/sub channel, fanning
// deliveries out to whatever consumers subscribe to it.
type RedisChannel struct {
	name    string
	channel string
	client  *redis.Client
}

// NewRedisChannel dials redis and verifies the connection with a ping.
func NewRedisChannel(cfg config.ChannelConfig) (*RedisChannel, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis channel %q has no redis section", cfg.Name)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisChannelWithClient(cfg.Name, cfg.Channel, client), nil
}

// NewRedisChannelWithClient wraps an existing client, used by tests.
func NewRedisChannelWithClient(name, channel string, client *redis.Client) *RedisChannel {
	return &RedisChannel{
		name:    name,
		channel: channel,
		client:  client,
	}
}

func (c *RedisChannel) Name() string {
	return c.name
}

// Deliver publishes the record as JSON. Publishing to a channel with no
// subscribers succeeds; pub/sub has no retention.
func (c *RedisChannel) Deliver(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding notification %s: %w", rec.ID, err)
	}

	if err := c.client.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", c.channel, err)
	}

	return nil
}

func (c *RedisChannel) Close() error {
	return c.client.Close()
}
