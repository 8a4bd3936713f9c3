package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
)

// Config represents the complete configuration for the ChainReactor.
type Config struct {
	// Ingest contains the webhook ingest configuration
	Ingest IngestConfig `yaml:"ingest" json:"ingest" toml:"ingest"`

	// Classifier contains the event classifier configuration
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier" toml:"classifier"`

	// Routing contains the routing table configuration
	Routing RoutingConfig `yaml:"routing" json:"routing" toml:"routing"`

	// Cache contains the cache backend configuration
	Cache CacheConfig `yaml:"cache" json:"cache" toml:"cache"`

	// Invalidator contains the cache invalidator configuration
	Invalidator InvalidatorConfig `yaml:"invalidator" json:"invalidator" toml:"invalidator"`

	// Dispatcher contains the notification dispatcher configuration
	Dispatcher DispatcherConfig `yaml:"dispatcher" json:"dispatcher" toml:"dispatcher"`

	// Reorg contains the reorg coordinator configuration
	Reorg ReorgConfig `yaml:"reorg" json:"reorg" toml:"reorg"`

	// DB contains database configuration for the rollback journal and notification inbox
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// API contains the HTTP API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// IngestConfig represents the configuration for the webhook event ingest.
type IngestConfig struct {
	// MaxBodyBytes caps the accepted request body size for batch payloads
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes" toml:"max_body_bytes"`

	// QueueSize is the number of decoded batches that may be pending processing
	QueueSize int `yaml:"queue_size" json:"queue_size" toml:"queue_size"`

	// SharedSecret, when set, requires batch requests to carry a valid
	// X-Reactor-Signature header (hex HMAC-SHA256 of the body)
	SharedSecret string `yaml:"shared_secret,omitempty" json:"shared_secret,omitempty" toml:"shared_secret,omitempty"`

	// AllowedChains restricts ingest to the given chain IDs (empty = all)
	AllowedChains []uint64 `yaml:"allowed_chains,omitempty" json:"allowed_chains,omitempty" toml:"allowed_chains,omitempty"`
}

// ApplyDefaults sets default values for optional ingest configuration fields.
func (i *IngestConfig) ApplyDefaults() {
	if i.MaxBodyBytes == 0 {
		i.MaxBodyBytes = int64(common.MBToBytes(10)) //nolint:mnd
	}
	if i.QueueSize == 0 {
		i.QueueSize = 256
	}
}

// ClassifierConfig represents the configuration for the event classifier.
type ClassifierConfig struct {
	// MemoSize is the capacity of the classification memo cache
	MemoSize int `yaml:"memo_size" json:"memo_size" toml:"memo_size"`

	// MemoTTL is how long a memoized classification stays valid
	MemoTTL common.Duration `yaml:"memo_ttl" json:"memo_ttl" toml:"memo_ttl"`

	// ExtraMethods extends the built-in method allow-lists per event kind,
	// e.g. {"badge_minted": ["award-badge"]}
	ExtraMethods map[string][]string `yaml:"extra_methods,omitempty" json:"extra_methods,omitempty" toml:"extra_methods,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional classifier configuration fields.
func (c *ClassifierConfig) ApplyDefaults() {
	if c.MemoSize == 0 {
		c.MemoSize = 8192
	}
	if c.MemoTTL.Duration == 0 {
		c.MemoTTL = common.NewDuration(5 * time.Second) //nolint:mnd
	}
}

// RoutingConfig represents the configuration for the routing table.
type RoutingConfig struct {
	// RouteLogCapacity is the number of recent dispatch records kept in memory
	RouteLogCapacity int `yaml:"route_log_capacity" json:"route_log_capacity" toml:"route_log_capacity"`
}

// ApplyDefaults sets default values for optional routing configuration fields.
func (r *RoutingConfig) ApplyDefaults() {
	if r.RouteLogCapacity == 0 {
		r.RouteLogCapacity = 1000
	}
}

// CacheConfig represents the configuration for the cache backend.
type CacheConfig struct {
	// Backend selects the cache implementation: "memory", "redis" or "bigcache"
	Backend string `yaml:"backend" json:"backend" toml:"backend"`

	// Capacity is the maximum number of entries for the memory backend
	Capacity int `yaml:"capacity" json:"capacity" toml:"capacity"`

	// DefaultTTL is applied to entries stored without an explicit TTL
	DefaultTTL common.Duration `yaml:"default_ttl" json:"default_ttl" toml:"default_ttl"`

	// Redis contains connection settings for the redis backend
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty" toml:"redis,omitempty"`

	// BigCache contains settings for the bigcache backend
	BigCache *BigCacheConfig `yaml:"bigcache,omitempty" json:"bigcache,omitempty" toml:"bigcache,omitempty"`
}

// ApplyDefaults sets default values for optional cache configuration fields.
func (c *CacheConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Capacity == 0 {
		c.Capacity = 65536
	}
	if c.DefaultTTL.Duration == 0 {
		c.DefaultTTL = common.NewDuration(5 * time.Minute) //nolint:mnd
	}
	if c.Redis != nil {
		c.Redis.ApplyDefaults()
	}
	if c.BigCache != nil {
		c.BigCache.ApplyDefaults()
	}
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	switch common.ToLowerWithTrim(c.Backend) {
	case "memory", "bigcache":
	case "redis":
		if c.Redis == nil || c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("backend must be one of: memory, redis, bigcache")
	}
	return nil
}

// RedisConfig represents connection settings for a redis server.
type RedisConfig struct {
	// Address is the redis server address, "host:port"
	Address string `yaml:"address" json:"address" toml:"address"`

	// Password is the optional redis AUTH password
	Password string `yaml:"password,omitempty" json:"password,omitempty" toml:"password,omitempty"`

	// DB is the redis database number
	DB int `yaml:"db" json:"db" toml:"db"`

	// KeyPrefix is prepended to every cache key stored in redis
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" toml:"key_prefix"`
}

// ApplyDefaults sets default values for optional redis configuration fields.
func (r *RedisConfig) ApplyDefaults() {
	if r.KeyPrefix == "" {
		r.KeyPrefix = "chainreactor:"
	}
}

// BigCacheConfig represents settings for the bigcache backend.
type BigCacheConfig struct {
	// MaxSizeMB is the maximum cache size in megabytes
	MaxSizeMB uint64 `yaml:"max_size_mb" json:"max_size_mb" toml:"max_size_mb"`

	// Shards is the number of cache shards, must be a power of two
	Shards int `yaml:"shards" json:"shards" toml:"shards"`
}

// ApplyDefaults sets default values for optional bigcache configuration fields.
func (b *BigCacheConfig) ApplyDefaults() {
	if b.MaxSizeMB == 0 {
		b.MaxSizeMB = 64
	}
	if b.Shards == 0 {
		b.Shards = 256
	}
}

// InvalidatorConfig represents the configuration for the cache invalidator.
type InvalidatorConfig struct {
	// RewarmEnabled controls whether invalidated keys are queued for rewarming
	RewarmEnabled bool `yaml:"rewarm_enabled" json:"rewarm_enabled" toml:"rewarm_enabled"`

	// RewarmQueueSize is the capacity of the rewarm queue
	RewarmQueueSize int `yaml:"rewarm_queue_size" json:"rewarm_queue_size" toml:"rewarm_queue_size"`

	// RewarmInterval is how often the rewarm worker drains its queue
	RewarmInterval common.Duration `yaml:"rewarm_interval" json:"rewarm_interval" toml:"rewarm_interval"`

	// RewarmTimeout bounds a single rewarm loader call
	RewarmTimeout common.Duration `yaml:"rewarm_timeout" json:"rewarm_timeout" toml:"rewarm_timeout"`

	// Rules contains declarative invalidation rules applied in addition
	// to the built-in rule set
	Rules []RuleConfig `yaml:"rules,omitempty" json:"rules,omitempty" toml:"rules,omitempty"`
}

// ApplyDefaults sets default values for optional invalidator configuration fields.
func (i *InvalidatorConfig) ApplyDefaults() {
	if i.RewarmQueueSize == 0 {
		i.RewarmQueueSize = 1024
	}
	if i.RewarmInterval.Duration == 0 {
		i.RewarmInterval = common.NewDuration(1 * time.Second)
	}
	if i.RewarmTimeout.Duration == 0 {
		i.RewarmTimeout = common.NewDuration(5 * time.Second) //nolint:mnd
	}
}

// RuleConfig represents a declarative cache invalidation rule.
type RuleConfig struct {
	// Name identifies the rule in logs and stats
	Name string `yaml:"name" json:"name" toml:"name"`

	// EventKinds lists the domain event kinds the rule matches
	EventKinds []string `yaml:"event_kinds" json:"event_kinds" toml:"event_kinds"`

	// KeyTemplates produce cache keys from event fields,
	// e.g. "badge:{badge_id}" or "user_badges:{recipient}"
	KeyTemplates []string `yaml:"key_templates" json:"key_templates" toml:"key_templates"`
}

// Validate checks if the rule configuration is valid.
func (r *RuleConfig) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.EventKinds) == 0 {
		return fmt.Errorf("at least one event kind is required")
	}
	if len(r.KeyTemplates) == 0 {
		return fmt.Errorf("at least one key template is required")
	}
	return nil
}

// DispatcherConfig represents the configuration for the notification dispatcher.
type DispatcherConfig struct {
	// BatchSize is the number of notifications that triggers an immediate flush
	BatchSize int `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// BatchInterval is the maximum time a pending notification waits before flush
	BatchInterval common.Duration `yaml:"batch_interval" json:"batch_interval" toml:"batch_interval"`

	// MaxRetries is the number of retries after a failed channel delivery
	MaxRetries int `yaml:"max_retries" json:"max_retries" toml:"max_retries"`

	// RetryBackoff is the initial backoff before the first retry
	RetryBackoff common.Duration `yaml:"retry_backoff" json:"retry_backoff" toml:"retry_backoff"`

	// MaxBackoff is the maximum backoff between retries
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`

	// QueueSize is the capacity of the pending notification queue
	QueueSize int `yaml:"queue_size" json:"queue_size" toml:"queue_size"`

	// Channels lists the notification channels to register at startup
	Channels []ChannelConfig `yaml:"channels,omitempty" json:"channels,omitempty" toml:"channels,omitempty"`
}

// ApplyDefaults sets default values for optional dispatcher configuration fields.
func (d *DispatcherConfig) ApplyDefaults() {
	if d.BatchSize == 0 {
		d.BatchSize = 50
	}
	if d.BatchInterval.Duration == 0 {
		d.BatchInterval = common.NewDuration(1 * time.Second)
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = 3
	}
	if d.RetryBackoff.Duration == 0 {
		d.RetryBackoff = common.NewDuration(100 * time.Millisecond) //nolint:mnd
	}
	if d.MaxBackoff.Duration == 0 {
		d.MaxBackoff = common.NewDuration(5 * time.Second) //nolint:mnd
	}
	if d.BackoffMultiplier == 0 {
		d.BackoffMultiplier = 2.0
	}
	if d.QueueSize == 0 {
		d.QueueSize = 1024
	}
	for i := range d.Channels {
		d.Channels[i].ApplyDefaults()
	}
}

// ChannelConfig represents a single notification channel.
type ChannelConfig struct {
	// Name is a unique identifier for this channel
	Name string `yaml:"name" json:"name" toml:"name"`

	// Type selects the channel implementation: "inapp", "webhook", "websocket" or "redis"
	Type string `yaml:"type" json:"type" toml:"type"`

	// URL is the delivery endpoint for webhook channels
	URL string `yaml:"url,omitempty" json:"url,omitempty" toml:"url,omitempty"`

	// Secret signs webhook deliveries with HMAC-SHA256 when set
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty" toml:"secret,omitempty"`

	// Timeout bounds a single delivery attempt for webhook channels
	Timeout common.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" toml:"timeout,omitempty"`

	// Channel is the redis pub/sub channel name for redis channels
	Channel string `yaml:"channel,omitempty" json:"channel,omitempty" toml:"channel,omitempty"`

	// Redis contains connection settings for redis channels
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty" toml:"redis,omitempty"`
}

// ApplyDefaults sets default values for optional channel configuration fields.
func (c *ChannelConfig) ApplyDefaults() {
	if c.Timeout.Duration == 0 {
		c.Timeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if c.Type == "redis" && c.Channel == "" {
		c.Channel = "chainreactor:notifications"
	}
	if c.Redis != nil {
		c.Redis.ApplyDefaults()
	}
}

// Validate checks if the channel configuration is valid.
func (c *ChannelConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch common.ToLowerWithTrim(c.Type) {
	case "inapp", "websocket":
	case "webhook":
		if c.URL == "" {
			return fmt.Errorf("url is required for webhook channels")
		}
		if _, err := url.ParseRequestURI(c.URL); err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
	case "redis":
		if c.Redis == nil || c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for redis channels")
		}
	default:
		return fmt.Errorf("type must be one of: inapp, webhook, websocket, redis")
	}

	return nil
}

// ReorgConfig represents the configuration for the reorg coordinator.
type ReorgConfig struct {
	// FinalityDepth is the number of blocks below the chain tip considered
	// final, journal entries deeper than this are pruned
	FinalityDepth uint64 `yaml:"finality_depth" json:"finality_depth" toml:"finality_depth"`

	// PruneInterval is how often the journal janitor prunes finalized entries
	PruneInterval common.Duration `yaml:"prune_interval" json:"prune_interval" toml:"prune_interval"`
}

// ApplyDefaults sets default values for optional reorg configuration fields.
func (r *ReorgConfig) ApplyDefaults() {
	if r.FinalityDepth == 0 {
		r.FinalityDepth = 64
	}
	if r.PruneInterval.Duration == 0 {
		r.PruneInterval = common.NewDuration(10 * time.Minute) //nolint:mnd
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	// NORMAL provides a good balance between safety and performance
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`

	// Maintenance contains optional database maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	if d.Maintenance != nil {
		d.Maintenance.ApplyDefaults()
	}
	// EnableForeignKeys defaults to false (zero value)
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}

	if d.JournalMode != "" && d.JournalMode != "WAL" &&
		d.JournalMode != "DELETE" && d.JournalMode != "TRUNCATE" &&
		d.JournalMode != "PERSIST" && d.JournalMode != "MEMORY" {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if d.Synchronous != "" && d.Synchronous != "FULL" &&
		d.Synchronous != "NORMAL" && d.Synchronous != "OFF" {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}

	if d.Maintenance != nil {
		if err := d.Maintenance.Validate(); err != nil {
			return fmt.Errorf("maintenance: %w", err)
		}
	}

	return nil
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	// TRUNCATE is recommended for production (most aggressive space reclamation)
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
	// Enabled defaults to false (zero value)
	// VacuumOnStartup defaults to false (zero value)
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	return nil
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	// Enabled controls whether the API server is started
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout bounds reading the request including the body
	ReadTimeout common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`

	// WriteTimeout bounds writing the response
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`

	// IdleTimeout bounds how long idle keep-alive connections are held
	IdleTimeout common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// RateLimit contains optional request rate limiting settings
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty" toml:"rate_limit,omitempty"`

	// CORS contains cross-origin request settings
	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`

	// EnableSwagger serves the OpenAPI UI under /swagger/
	EnableSwagger bool `yaml:"enable_swagger" json:"enable_swagger" toml:"enable_swagger"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if a.RateLimit != nil {
		a.RateLimit.ApplyDefaults()
	}
	a.CORS.ApplyDefaults()
}

// Validate checks if the API configuration is valid.
func (a *APIConfig) Validate() error {
	if a.Enabled && a.ListenAddress == "" {
		return fmt.Errorf("listen_address is required when the API is enabled")
	}
	return nil
}

// RateLimitConfig configures API request rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate allowed across all clients
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" toml:"requests_per_second"`

	// Burst is the maximum burst size allowed on top of the sustained rate
	Burst int `yaml:"burst" json:"burst" toml:"burst"`
}

// ApplyDefaults sets default values for optional rate limit configuration fields.
func (r *RateLimitConfig) ApplyDefaults() {
	if r.RequestsPerSecond == 0 {
		r.RequestsPerSecond = 50
	}
	if r.Burst == 0 {
		r.Burst = 100
	}
}

// CORSConfig configures cross-origin resource sharing for the API.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// AllowedOrigins lists the origins allowed to call the API ("*" for any)
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
}

// ApplyDefaults sets default values for optional CORS configuration fields.
func (c *CORSConfig) ApplyDefaults() {
	if c.Enabled && len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - ingest: Webhook batch ingest
	//   - classifier: Raw event classification
	//   - routing-table: Subscription matching and dispatch
	//   - cache-invalidator: Cache invalidation and rewarming
	//   - notification-dispatcher: Notification batching and delivery
	//   - reorg-coordinator: Rollback orchestration
	//   - rollback-journal: Journal storage layer
	//   - maintenance: Database maintenance
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	// Development defaults to false (zero value)
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	// Validate default level
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		// Check if component is valid
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		// Check if level is valid
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	// Enabled defaults to false (zero value)
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if !strings.HasPrefix(m.Path, "/") {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Ingest.ApplyDefaults()
	c.Classifier.ApplyDefaults()
	c.Routing.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Invalidator.ApplyDefaults()
	c.Dispatcher.ApplyDefaults()
	c.Reorg.ApplyDefaults()
	c.DB.ApplyDefaults()

	if c.API != nil {
		c.API.ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	for i, rule := range c.Invalidator.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("invalidator.rules[%d]: %w", i, err)
		}
	}

	channelNames := make(map[string]bool)
	for i, channel := range c.Dispatcher.Channels {
		if err := channel.Validate(); err != nil {
			return fmt.Errorf("dispatcher.channels[%d]: %w", i, err)
		}

		if channelNames[channel.Name] {
			return fmt.Errorf("dispatcher.channels[%d]: duplicate channel name '%s'", i, channel.Name)
		}
		channelNames[channel.Name] = true
	}

	if c.Dispatcher.MaxRetries < 0 {
		return fmt.Errorf("dispatcher.max_retries must not be negative")
	}

	if err := c.DB.Validate(); err != nil {
		return fmt.Errorf("db: %w", err)
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
