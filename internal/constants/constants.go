package constants

import "time"

// Stealth Contract Constants
const (
	// DefaultAnnouncerAddress is the canonical ERC-5564 announcement singleton,
	// deployed at the same address on all supported chains
	DefaultAnnouncerAddress = "0x55649E01B5Df198D18D95b5cc5051630cfD45564"

	// DefaultRegistryAddress is the canonical ERC-6538 stealth meta-address registry
	DefaultRegistryAddress = "0x6538E6bf4B0eBd30A8Ea093027Ac2422ce5d6538"
)

// Scan Constants
const (
	// DefaultBaseScanInterval is the default delay between scan cycles on a healthy chain
	DefaultBaseScanInterval = 12 * time.Second

	// DefaultMaxScanInterval caps the backoff delay for a failing chain
	DefaultMaxScanInterval = 10 * time.Minute

	// DefaultMaxBlockRange is the default maximum number of blocks per log query
	DefaultMaxBlockRange = 500

	// DefaultMaxFailureCount is the number of consecutive failed cycles after
	// which a chain loop is permanently disabled
	DefaultMaxFailureCount = 10

	// DefaultStartOffset is how many blocks behind head a chain starts when no
	// cursor is persisted
	DefaultStartOffset = 100

	// DefaultFetchAttempts is the default number of attempts per log fetch
	DefaultFetchAttempts = 3

	// DefaultFetchRetryDelay is the base delay between fetch attempts
	DefaultFetchRetryDelay = 500 * time.Millisecond
)

// Dedup Constants
const (
	// DefaultDedupMaxSize is the default ceiling of the event dedup set
	DefaultDedupMaxSize = 100000

	// DefaultDedupCleanupInterval is how often the background cleanup runs
	DefaultDedupCleanupInterval = 10 * time.Minute
)

// Registry Constants
const (
	// DefaultRegistryRefreshInterval is how often the user snapshot is rebuilt
	DefaultRegistryRefreshInterval = 5 * time.Minute
)

// Throttle Constants
const (
	// DefaultMinNotificationInterval is the default per-user cooldown
	DefaultMinNotificationInterval = 5 * time.Minute

	// DefaultMaxNotificationsPerHour is the default per-user hourly cap
	DefaultMaxNotificationsPerHour = 10

	// NotificationBucketWidth is the width of one rate-limit bucket. Buckets
	// are aligned to this width and expire after it.
	NotificationBucketWidth = time.Hour
)

// Storage Constants
const (
	// DefaultCacheSize is the default cache size in MB for PebbleDB
	DefaultCacheSize = 64 // MB

	// DefaultMaxOpenFiles is the default maximum number of open files for PebbleDB
	DefaultMaxOpenFiles = 1000

	// DefaultWriteBuffer is the default write buffer size in MB for PebbleDB
	DefaultWriteBuffer = 32 // MB

	// DefaultCompactionConcurrency is the default number of concurrent compactions
	DefaultCompactionConcurrency = 2

	// DefaultSweepInterval is how often the pebble backend sweeps expired keys
	DefaultSweepInterval = time.Minute
)

// Outbound HTTP Constants
const (
	// DefaultHTTPTimeout is the default timeout for outbound HTTP calls
	DefaultHTTPTimeout = 10 * time.Second

	// DefaultNotifierRateLimit is the default outbound notifications per second
	DefaultNotifierRateLimit = 20

	// DefaultNotifierRateBurst is the default outbound burst size
	DefaultNotifierRateBurst = 40
)

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8093

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultRateLimitPerSecond is the default API rate limit (requests per second)
	DefaultRateLimitPerSecond = 100

	// DefaultRateLimitBurst is the default API rate limit burst size
	DefaultRateLimitBurst = 200
)

// WebSocket Constants
const (
	// DefaultWSReadBufferSize is the default WebSocket read buffer size
	DefaultWSReadBufferSize = 1024

	// DefaultWSWriteBufferSize is the default WebSocket write buffer size
	DefaultWSWriteBufferSize = 1024

	// DefaultWSPingInterval is the default WebSocket ping interval
	DefaultWSPingInterval = 30 * time.Second

	// DefaultWSWriteTimeout is the default WebSocket write timeout
	DefaultWSWriteTimeout = 10 * time.Second

	// DefaultWSSendBuffer is the per-client buffered event count before a slow
	// client is dropped
	DefaultWSSendBuffer = 64
)

// EventBus Constants
const (
	// DefaultEventChannel is the default Redis Pub/Sub channel for events
	DefaultEventChannel = "stealth:events"

	// DefaultEventTopic is the default Kafka topic for events
	DefaultEventTopic = "stealth-events"

	// DefaultKafkaBatchSize is the default maximum number of messages per
	// Kafka batch
	DefaultKafkaBatchSize = 100

	// DefaultKafkaLingerMs is the default time in ms to wait for a batch to fill
	DefaultKafkaLingerMs = 5
)

// Size Constants
const (
	// BytesPerKB represents bytes in a kilobyte
	BytesPerKB = 1024

	// BytesPerMB represents bytes in a megabyte
	BytesPerMB = 1024 * BytesPerKB
)
