package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

var (
	// ErrUnknownChannel is returned when a record names a delivery method
	// with no registered channel.
	ErrUnknownChannel = errors.New("unknown delivery channel")

	// ErrNoChannels is returned when a fan-out delivery finds no channels
	// registered at all.
	ErrNoChannels = errors.New("no delivery channels registered")

	// ErrDispatcherClosed is returned by Enqueue after Destroy.
	ErrDispatcherClosed = errors.New("dispatcher is destroyed")

	// ErrQueueFull is returned by Enqueue when the pending queue is at
	// capacity.
	ErrQueueFull = errors.New("notification queue is full")
)

// Channel delivers a single notification record. Implementations must be
// safe for concurrent use; the dispatcher fans out to channels from
// multiple flushes.
type Channel interface {
	// Name identifies the channel; records select it via DeliveryMethod.
	Name() string

	// Deliver attempts one delivery. A returned error counts against the
	// record's remaining retries.
	Deliver(ctx context.Context, rec *Record) error

	// Close releases the channel's resources.
	Close() error
}

// NewChannelFromConfig builds the channel implementation the config names.
func NewChannelFromConfig(cfg config.ChannelConfig, log *logger.Logger) (Channel, error) {
	switch cfg.Type {
	case "inapp":
		return NewInAppChannel(cfg.Name, 0), nil
	case "webhook":
		return NewWebhookChannel(cfg)
	case "websocket":
		return NewWebSocketChannel(cfg.Name, NewHub(log)), nil
	case "redis":
		return NewRedisChannel(cfg)
	default:
		return nil, fmt.Errorf("unknown channel type %q", cfg.Type)
	}
}
