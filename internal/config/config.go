package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
)

// Config holds all configuration for the stealth monitor
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	UserStore UserStoreConfig `yaml:"userstore"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	API       APIConfig       `yaml:"api"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig holds state store configuration. The state store keeps
// per-chain scan cursors and per-user notification counters.
type StorageConfig struct {
	// Backend is the state store backend: "memory", "pebble" or "redis"
	Backend string `yaml:"backend"`
	// Path is the PebbleDB directory (pebble backend only)
	Path string `yaml:"path"`
	// Redis holds Redis connection settings (redis backend only)
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	// Addr is the Redis server address
	Addr string `yaml:"addr"`
	// Password is the optional Redis password
	Password string `yaml:"password,omitempty"`
	// DB is the Redis database number
	DB int `yaml:"db"`
}

// MonitorConfig holds the scanning pipeline configuration
type MonitorConfig struct {
	// Chains is the list of monitored chain configurations
	Chains []ChainConfig `yaml:"chains"`
	// Scan holds scan scheduling settings shared by all chains
	Scan ScanConfig `yaml:"scan"`
	// Dedup holds event dedup set settings
	Dedup DedupConfig `yaml:"dedup"`
	// Registry holds user registry refresh settings
	Registry RegistryConfig `yaml:"registry"`
	// Throttle holds per-user notification throttling settings
	Throttle ThrottleConfig `yaml:"throttle"`
}

// ChainConfig defines the configuration for a single monitored chain
type ChainConfig struct {
	// Name is a unique human-readable name for the chain
	Name string `yaml:"name"`
	// ChainID is the numeric chain ID
	ChainID uint64 `yaml:"chain_id"`
	// RPCEndpoint is the HTTP(S) JSON-RPC endpoint URL
	RPCEndpoint string `yaml:"rpc_endpoint"`
	// AnnouncerAddress is the ERC-5564 announcement contract address.
	// Defaults to the canonical singleton.
	AnnouncerAddress string `yaml:"announcer_address,omitempty"`
	// RegistryAddress is the ERC-6538 registry contract address.
	// Defaults to the canonical singleton.
	RegistryAddress string `yaml:"registry_address,omitempty"`
	// Enabled indicates whether this chain should be scanned
	Enabled bool `yaml:"enabled"`
	// RPCTimeout is the timeout for RPC calls
	RPCTimeout time.Duration `yaml:"rpc_timeout,omitempty"`
}

// ScanConfig holds scan scheduling settings
type ScanConfig struct {
	// BaseInterval is the delay between scan cycles on a healthy chain
	BaseInterval time.Duration `yaml:"base_interval"`
	// MaxInterval caps the backoff delay for a failing chain
	MaxInterval time.Duration `yaml:"max_interval"`
	// MaxBlockRange is the maximum number of blocks per log query
	MaxBlockRange uint64 `yaml:"max_block_range"`
	// MaxFailureCount disables a chain after this many consecutive failed cycles
	MaxFailureCount int `yaml:"max_failure_count"`
	// StartOffset is how many blocks behind head to start without a cursor
	StartOffset uint64 `yaml:"start_offset"`
	// FetchAttempts is the number of attempts per log fetch
	FetchAttempts int `yaml:"fetch_attempts"`
	// FetchRetryDelay is the base delay between fetch attempts
	FetchRetryDelay time.Duration `yaml:"fetch_retry_delay"`
}

// DedupConfig holds event dedup set settings
type DedupConfig struct {
	// MaxSize is the ceiling of the dedup set; the oldest half is evicted on overflow
	MaxSize int `yaml:"max_size"`
	// CleanupInterval is how often the background cleanup cycle runs
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RegistryConfig holds user registry refresh settings
type RegistryConfig struct {
	// RefreshInterval is how often the user snapshot is rebuilt from the user store
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ThrottleConfig holds per-user notification throttling settings
type ThrottleConfig struct {
	// MinInterval is the per-user cooldown between notifications
	MinInterval time.Duration `yaml:"min_interval"`
	// MaxPerHour is the per-user cap within one hour-aligned bucket
	MaxPerHour int `yaml:"max_per_hour"`
}

// UserStoreConfig holds the external user store client configuration
type UserStoreConfig struct {
	// Endpoint is the user service base URL. Empty selects the static dev store.
	Endpoint string `yaml:"endpoint"`
	// AuthToken is the bearer token for the user service
	AuthToken string `yaml:"auth_token,omitempty"`
	// Timeout is the request timeout
	Timeout time.Duration `yaml:"timeout"`
}

// NotifierConfig holds the push notification client configuration
type NotifierConfig struct {
	// Endpoint is the notification API URL. Empty selects the log-only sender.
	Endpoint string `yaml:"endpoint"`
	// AuthToken is the bearer token for the notification API
	AuthToken string `yaml:"auth_token,omitempty"`
	// SigningSecret enables HMAC-SHA256 body signatures when set
	SigningSecret string `yaml:"signing_secret,omitempty"`
	// Timeout is the request timeout
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is the maximum outbound notifications per second
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the outbound burst size
	RateBurst int `yaml:"rate_burst"`
}

// EventBusConfig holds downstream event publishing configuration
type EventBusConfig struct {
	// Backend is the publisher backend: "log", "redis" or "kafka"
	Backend string `yaml:"backend"`
	// Redis holds Redis Pub/Sub publisher configuration
	Redis EventBusRedisConfig `yaml:"redis"`
	// Kafka holds Kafka publisher configuration
	Kafka EventBusKafkaConfig `yaml:"kafka"`
}

// EventBusRedisConfig holds Redis Pub/Sub publisher configuration
type EventBusRedisConfig struct {
	// Addr is the Redis server address
	Addr string `yaml:"addr"`
	// Password is the optional Redis password
	Password string `yaml:"password,omitempty"`
	// DB is the Redis database number
	DB int `yaml:"db"`
	// Channel is the Pub/Sub channel events are published to
	Channel string `yaml:"channel"`
}

// EventBusKafkaConfig holds Kafka publisher configuration
type EventBusKafkaConfig struct {
	// Brokers is the list of Kafka broker addresses
	Brokers []string `yaml:"brokers"`
	// Topic is the Kafka topic for events
	Topic string `yaml:"topic"`
	// ClientID is the client ID for this producer
	ClientID string `yaml:"client_id"`
	// BatchSize is the maximum number of messages per batch
	BatchSize int `yaml:"batch_size"`
	// LingerMs is the time to wait for the batch to fill
	LingerMs int `yaml:"linger_ms"`
	// RequiredAcks is the number of acknowledgments required: 0, 1, -1 (all)
	RequiredAcks int `yaml:"required_acks"`
	// Async enables fire-and-forget publishing
	Async bool `yaml:"async"`
}

// APIConfig holds the operational HTTP server configuration
type APIConfig struct {
	// Enabled indicates whether the HTTP server should run
	Enabled bool `yaml:"enabled"`
	// Host is the listen host
	Host string `yaml:"host"`
	// Port is the listen port
	Port int `yaml:"port"`
	// EnableWebSocket exposes the live event feed at /ws
	EnableWebSocket bool `yaml:"enable_websocket"`
	// EnableRateLimit enables per-IP request rate limiting
	EnableRateLimit bool `yaml:"enable_rate_limit"`
	// RateLimitPerSecond is the per-client request rate limit
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	// RateLimitBurst is the per-client burst size
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = "pebble"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/monitor"
	}

	// Chain defaults
	for i := range c.Monitor.Chains {
		chain := &c.Monitor.Chains[i]
		if chain.AnnouncerAddress == "" {
			chain.AnnouncerAddress = constants.DefaultAnnouncerAddress
		}
		if chain.RegistryAddress == "" {
			chain.RegistryAddress = constants.DefaultRegistryAddress
		}
		if chain.RPCTimeout == 0 {
			chain.RPCTimeout = constants.DefaultHTTPTimeout
		}
	}

	// Scan defaults
	if c.Monitor.Scan.BaseInterval == 0 {
		c.Monitor.Scan.BaseInterval = constants.DefaultBaseScanInterval
	}
	if c.Monitor.Scan.MaxInterval == 0 {
		c.Monitor.Scan.MaxInterval = constants.DefaultMaxScanInterval
	}
	if c.Monitor.Scan.MaxBlockRange == 0 {
		c.Monitor.Scan.MaxBlockRange = constants.DefaultMaxBlockRange
	}
	if c.Monitor.Scan.MaxFailureCount == 0 {
		c.Monitor.Scan.MaxFailureCount = constants.DefaultMaxFailureCount
	}
	if c.Monitor.Scan.StartOffset == 0 {
		c.Monitor.Scan.StartOffset = constants.DefaultStartOffset
	}
	if c.Monitor.Scan.FetchAttempts == 0 {
		c.Monitor.Scan.FetchAttempts = constants.DefaultFetchAttempts
	}
	if c.Monitor.Scan.FetchRetryDelay == 0 {
		c.Monitor.Scan.FetchRetryDelay = constants.DefaultFetchRetryDelay
	}

	// Dedup defaults
	if c.Monitor.Dedup.MaxSize == 0 {
		c.Monitor.Dedup.MaxSize = constants.DefaultDedupMaxSize
	}
	if c.Monitor.Dedup.CleanupInterval == 0 {
		c.Monitor.Dedup.CleanupInterval = constants.DefaultDedupCleanupInterval
	}

	// Registry defaults
	if c.Monitor.Registry.RefreshInterval == 0 {
		c.Monitor.Registry.RefreshInterval = constants.DefaultRegistryRefreshInterval
	}

	// Throttle defaults
	if c.Monitor.Throttle.MinInterval == 0 {
		c.Monitor.Throttle.MinInterval = constants.DefaultMinNotificationInterval
	}
	if c.Monitor.Throttle.MaxPerHour == 0 {
		c.Monitor.Throttle.MaxPerHour = constants.DefaultMaxNotificationsPerHour
	}

	// UserStore defaults
	if c.UserStore.Timeout == 0 {
		c.UserStore.Timeout = constants.DefaultHTTPTimeout
	}

	// Notifier defaults
	if c.Notifier.Timeout == 0 {
		c.Notifier.Timeout = constants.DefaultHTTPTimeout
	}
	if c.Notifier.RateLimit == 0 {
		c.Notifier.RateLimit = constants.DefaultNotifierRateLimit
	}
	if c.Notifier.RateBurst == 0 {
		c.Notifier.RateBurst = constants.DefaultNotifierRateBurst
	}

	// EventBus defaults
	if c.EventBus.Backend == "" {
		c.EventBus.Backend = "log"
	}
	if c.EventBus.Redis.Channel == "" {
		c.EventBus.Redis.Channel = constants.DefaultEventChannel
	}
	if c.EventBus.Kafka.Topic == "" {
		c.EventBus.Kafka.Topic = constants.DefaultEventTopic
	}
	if c.EventBus.Kafka.BatchSize == 0 {
		c.EventBus.Kafka.BatchSize = constants.DefaultKafkaBatchSize
	}
	if c.EventBus.Kafka.LingerMs == 0 {
		c.EventBus.Kafka.LingerMs = constants.DefaultKafkaLingerMs
	}
	if c.EventBus.Kafka.RequiredAcks == 0 {
		c.EventBus.Kafka.RequiredAcks = -1 // All replicas
	}
	if c.EventBus.Kafka.ClientID == "" {
		hostname, err := os.Hostname()
		if err == nil {
			c.EventBus.Kafka.ClientID = "stealth-monitor-" + hostname
		} else {
			c.EventBus.Kafka.ClientID = "stealth-monitor"
		}
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over file configuration.
func (c *Config) LoadFromEnv() error {
	// Log configuration
	if level := os.Getenv("MONITOR_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("MONITOR_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// Storage configuration
	if backend := os.Getenv("MONITOR_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if path := os.Getenv("MONITOR_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}
	if addr := os.Getenv("MONITOR_STORAGE_REDIS_ADDR"); addr != "" {
		c.Storage.Redis.Addr = addr
	}
	if password := os.Getenv("MONITOR_STORAGE_REDIS_PASSWORD"); password != "" {
		c.Storage.Redis.Password = password
	}
	if db := os.Getenv("MONITOR_STORAGE_REDIS_DB"); db != "" {
		val, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_STORAGE_REDIS_DB: %w", err)
		}
		c.Storage.Redis.DB = val
	}

	// Scan configuration
	if interval := os.Getenv("MONITOR_SCAN_BASE_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_SCAN_BASE_INTERVAL: %w", err)
		}
		c.Monitor.Scan.BaseInterval = duration
	}
	if interval := os.Getenv("MONITOR_SCAN_MAX_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_SCAN_MAX_INTERVAL: %w", err)
		}
		c.Monitor.Scan.MaxInterval = duration
	}
	if blockRange := os.Getenv("MONITOR_SCAN_MAX_BLOCK_RANGE"); blockRange != "" {
		val, err := strconv.ParseUint(blockRange, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_SCAN_MAX_BLOCK_RANGE: %w", err)
		}
		c.Monitor.Scan.MaxBlockRange = val
	}
	if failures := os.Getenv("MONITOR_SCAN_MAX_FAILURES"); failures != "" {
		val, err := strconv.Atoi(failures)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_SCAN_MAX_FAILURES: %w", err)
		}
		c.Monitor.Scan.MaxFailureCount = val
	}
	if offset := os.Getenv("MONITOR_SCAN_START_OFFSET"); offset != "" {
		val, err := strconv.ParseUint(offset, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_SCAN_START_OFFSET: %w", err)
		}
		c.Monitor.Scan.StartOffset = val
	}

	// Dedup configuration
	if size := os.Getenv("MONITOR_DEDUP_MAX_SIZE"); size != "" {
		val, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_DEDUP_MAX_SIZE: %w", err)
		}
		c.Monitor.Dedup.MaxSize = val
	}
	if interval := os.Getenv("MONITOR_DEDUP_CLEANUP_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_DEDUP_CLEANUP_INTERVAL: %w", err)
		}
		c.Monitor.Dedup.CleanupInterval = duration
	}

	// Registry configuration
	if interval := os.Getenv("MONITOR_REGISTRY_REFRESH_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_REGISTRY_REFRESH_INTERVAL: %w", err)
		}
		c.Monitor.Registry.RefreshInterval = duration
	}

	// Throttle configuration
	if interval := os.Getenv("MONITOR_THROTTLE_MIN_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_THROTTLE_MIN_INTERVAL: %w", err)
		}
		c.Monitor.Throttle.MinInterval = duration
	}
	if perHour := os.Getenv("MONITOR_THROTTLE_MAX_PER_HOUR"); perHour != "" {
		val, err := strconv.Atoi(perHour)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_THROTTLE_MAX_PER_HOUR: %w", err)
		}
		c.Monitor.Throttle.MaxPerHour = val
	}

	// UserStore configuration
	if endpoint := os.Getenv("MONITOR_USERSTORE_ENDPOINT"); endpoint != "" {
		c.UserStore.Endpoint = endpoint
	}
	if token := os.Getenv("MONITOR_USERSTORE_TOKEN"); token != "" {
		c.UserStore.AuthToken = token
	}

	// Notifier configuration
	if endpoint := os.Getenv("MONITOR_NOTIFIER_ENDPOINT"); endpoint != "" {
		c.Notifier.Endpoint = endpoint
	}
	if token := os.Getenv("MONITOR_NOTIFIER_TOKEN"); token != "" {
		c.Notifier.AuthToken = token
	}
	if secret := os.Getenv("MONITOR_NOTIFIER_SECRET"); secret != "" {
		c.Notifier.SigningSecret = secret
	}

	// EventBus configuration
	if backend := os.Getenv("MONITOR_EVENTBUS_BACKEND"); backend != "" {
		c.EventBus.Backend = backend
	}
	if addr := os.Getenv("MONITOR_EVENTBUS_REDIS_ADDR"); addr != "" {
		c.EventBus.Redis.Addr = addr
	}
	if channel := os.Getenv("MONITOR_EVENTBUS_REDIS_CHANNEL"); channel != "" {
		c.EventBus.Redis.Channel = channel
	}
	if brokers := os.Getenv("MONITOR_EVENTBUS_KAFKA_BROKERS"); brokers != "" {
		c.EventBus.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("MONITOR_EVENTBUS_KAFKA_TOPIC"); topic != "" {
		c.EventBus.Kafka.Topic = topic
	}

	// API configuration
	if enabled := os.Getenv("MONITOR_API_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_API_ENABLED: %w", err)
		}
		c.API.Enabled = val
	}
	if host := os.Getenv("MONITOR_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("MONITOR_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_API_PORT: %w", err)
		}
		c.API.Port = val
	}
	if ws := os.Getenv("MONITOR_API_WEBSOCKET"); ws != "" {
		val, err := strconv.ParseBool(ws)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_API_WEBSOCKET: %w", err)
		}
		c.API.EnableWebSocket = val
	}
	if rl := os.Getenv("MONITOR_API_RATE_LIMIT"); rl != "" {
		val, err := strconv.ParseBool(rl)
		if err != nil {
			return fmt.Errorf("invalid MONITOR_API_RATE_LIMIT: %w", err)
		}
		c.API.EnableRateLimit = val
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Validate storage configuration
	validBackends := map[string]bool{
		"memory": true,
		"pebble": true,
		"redis":  true,
	}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("invalid storage backend %q, must be one of: memory, pebble, redis", c.Storage.Backend)
	}
	if c.Storage.Backend == "pebble" && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required for the pebble backend")
	}
	if c.Storage.Backend == "redis" && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for the redis backend")
	}

	// Validate chain configuration
	if len(c.Monitor.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	seen := make(map[string]bool)
	for i, chain := range c.Monitor.Chains {
		if chain.Name == "" {
			return fmt.Errorf("chain[%d]: name is required", i)
		}
		if seen[chain.Name] {
			return fmt.Errorf("chain[%d]: duplicate chain name %q", i, chain.Name)
		}
		seen[chain.Name] = true
		if chain.ChainID == 0 {
			return fmt.Errorf("chain %q: chain_id is required", chain.Name)
		}
		if chain.RPCEndpoint == "" {
			return fmt.Errorf("chain %q: rpc_endpoint is required", chain.Name)
		}
		if !common.IsHexAddress(chain.AnnouncerAddress) {
			return fmt.Errorf("chain %q: invalid announcer_address %q", chain.Name, chain.AnnouncerAddress)
		}
		if !common.IsHexAddress(chain.RegistryAddress) {
			return fmt.Errorf("chain %q: invalid registry_address %q", chain.Name, chain.RegistryAddress)
		}
	}

	// Validate scan configuration
	if c.Monitor.Scan.BaseInterval <= 0 {
		return fmt.Errorf("scan base interval must be positive")
	}
	if c.Monitor.Scan.MaxInterval < c.Monitor.Scan.BaseInterval {
		return fmt.Errorf("scan max interval must not be below the base interval")
	}
	if c.Monitor.Scan.MaxBlockRange == 0 {
		return fmt.Errorf("scan max block range must be positive")
	}
	if c.Monitor.Scan.MaxFailureCount <= 0 {
		return fmt.Errorf("scan max failure count must be positive")
	}
	if c.Monitor.Scan.FetchAttempts <= 0 {
		return fmt.Errorf("fetch attempts must be positive")
	}

	// Validate dedup configuration
	if c.Monitor.Dedup.MaxSize <= 0 {
		return fmt.Errorf("dedup max size must be positive")
	}

	// Validate throttle configuration
	if c.Monitor.Throttle.MinInterval < 0 {
		return fmt.Errorf("throttle min interval cannot be negative")
	}
	if c.Monitor.Throttle.MaxPerHour <= 0 {
		return fmt.Errorf("throttle max per hour must be positive")
	}

	// Validate eventbus configuration
	validBusBackends := map[string]bool{
		"log":   true,
		"redis": true,
		"kafka": true,
	}
	if !validBusBackends[c.EventBus.Backend] {
		return fmt.Errorf("invalid eventbus backend %q, must be one of: log, redis, kafka", c.EventBus.Backend)
	}
	if c.EventBus.Backend == "redis" && c.EventBus.Redis.Addr == "" {
		return fmt.Errorf("redis eventbus enabled but no address configured")
	}
	if c.EventBus.Backend == "kafka" {
		if len(c.EventBus.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka eventbus enabled but no brokers configured")
		}
		if c.EventBus.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	// Validate API configuration
	if c.API.Enabled {
		if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
			return fmt.Errorf("invalid API port %d", c.API.Port)
		}
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Set defaults for any missing values
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
