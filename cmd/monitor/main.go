package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/internal/config"
	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/internal/logger"
	"github.com/0xmhha/stealth-monitor-go/pkg/api"
	"github.com/0xmhha/stealth-monitor-go/pkg/eventbus"
	"github.com/0xmhha/stealth-monitor-go/pkg/monitor"
	"github.com/0xmhha/stealth-monitor-go/pkg/notifier"
	"github.com/0xmhha/stealth-monitor-go/pkg/notify"
	"github.com/0xmhha/stealth-monitor-go/pkg/registry"
	"github.com/0xmhha/stealth-monitor-go/pkg/scan"
	"github.com/0xmhha/stealth-monitor-go/pkg/storage"
	"github.com/0xmhha/stealth-monitor-go/pkg/userstore"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// statusFunc adapts a closure to the api.StatusSource interface.
type statusFunc func() monitor.ServiceStatus

func (f statusFunc) Status() monitor.ServiceStatus { return f() }

func main() {
	// Define command-line flags
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		dbPath      = flag.String("db", "", "State store path (pebble backend)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format (json, console)")

		// API server flags
		enableAPI       = flag.Bool("api", false, "Enable the operational HTTP server")
		apiHost         = flag.String("api-host", "", "API server host")
		apiPort         = flag.Int("api-port", 0, "API server port")
		enableWebSocket = flag.Bool("websocket", false, "Enable the WebSocket event feed")
	)

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		fmt.Printf("stealth-monitor-go version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command-line flags
	applyFlags(cfg, *dbPath, *logLevel, *logFormat)
	applyAPIFlags(cfg, *enableAPI, *apiHost, *apiPort, *enableWebSocket)

	// Initialize logger
	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Log startup information
	log.Info("Starting stealth monitor",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.Int("chains", len(cfg.Monitor.Chains)),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("eventbus_backend", cfg.EventBus.Backend),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize components
	log.Info("Initializing components...")

	// State store (scan cursors and notification counters)
	store, err := storage.New(ctx, storageConfig(cfg), log)
	if err != nil {
		log.Fatal("Failed to create state store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close state store", zap.Error(err))
		}
	}()

	log.Info("State store initialized",
		zap.String("backend", cfg.Storage.Backend),
	)

	// User registry backed by the user store
	userSource, err := userstore.New(&userstore.Config{
		Endpoint:  cfg.UserStore.Endpoint,
		AuthToken: cfg.UserStore.AuthToken,
		Timeout:   cfg.UserStore.Timeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to create user store", zap.Error(err))
	}
	users := registry.NewRegistry(userSource, log)

	// Notification path: matcher, sender, throttling dispatcher
	sender, err := notifier.New(&notifier.Config{
		Endpoint:      cfg.Notifier.Endpoint,
		AuthToken:     cfg.Notifier.AuthToken,
		SigningSecret: cfg.Notifier.SigningSecret,
		Timeout:       cfg.Notifier.Timeout,
		RateLimit:     cfg.Notifier.RateLimit,
		RateBurst:     cfg.Notifier.RateBurst,
	}, log)
	if err != nil {
		log.Fatal("Failed to create notification sender", zap.Error(err))
	}

	dispatcher, err := notify.NewDispatcher(&notify.Config{
		MinInterval: cfg.Monitor.Throttle.MinInterval,
		MaxPerHour:  cfg.Monitor.Throttle.MaxPerHour,
	}, scan.NewSchemeMatcher(log), sender, users, store, log)
	if err != nil {
		log.Fatal("Failed to create dispatcher", zap.Error(err))
	}

	// Downstream event publisher
	bus, err := eventbus.New(ctx, busConfig(cfg), log)
	if err != nil {
		log.Fatal("Failed to create event publisher", zap.Error(err))
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Error("Failed to close event publisher", zap.Error(err))
		}
	}()

	metrics := monitor.NewMetrics("")

	// API server (optional). Created before the service so its WebSocket
	// sink can join the publisher fan-out; the status source resolves
	// lazily because the service does not exist yet.
	var service *monitor.Service
	publisher := bus

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiConfig := api.DefaultConfig()
		apiConfig.Host = cfg.API.Host
		apiConfig.Port = cfg.API.Port
		apiConfig.EnableWebSocket = cfg.API.EnableWebSocket
		apiConfig.EnableRateLimit = cfg.API.EnableRateLimit
		apiConfig.RateLimitPerSecond = cfg.API.RateLimitPerSecond
		apiConfig.RateLimitBurst = cfg.API.RateLimitBurst

		apiServer, err = api.NewServer(apiConfig, log, statusFunc(func() monitor.ServiceStatus {
			if service == nil {
				return monitor.ServiceStatus{}
			}
			return service.Status()
		}))
		if err != nil {
			log.Fatal("Failed to create API server", zap.Error(err))
		}

		publisher = eventbus.Fanout(bus, apiServer.EventSink())
	}

	// Monitor service
	service, err = monitor.NewService(monitorConfig(cfg), store, users, dispatcher, publisher, metrics, log)
	if err != nil {
		log.Fatal("Failed to create monitor service", zap.Error(err))
	}

	if err := service.Start(ctx); err != nil {
		log.Fatal("Failed to start monitor service", zap.Error(err))
	}

	// Start API server in goroutine
	if apiServer != nil {
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("API server failed", zap.Error(err))
			}
		}()
	}

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("Received shutdown signal",
		zap.String("signal", sig.String()),
	)
	cancel()

	log.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer shutdownCancel()

	if err := service.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop monitor service gracefully", zap.Error(err))
	}

	// Stop API server if it was started
	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server gracefully", zap.Error(err))
		}
	}

	// Get final statistics
	for _, chain := range service.Status().Chains {
		log.Info("Final chain state",
			zap.String("chain", chain.Name),
			zap.Uint64("last_processed_block", chain.LastProcessedBlock),
			zap.Bool("disabled", chain.Disabled),
		)
	}

	log.Info("Stealth monitor stopped")
}

// loadConfig loads configuration from file and environment variables
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, dbPath, logLevel, logFormat string) {
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
}

// applyAPIFlags applies API-related command-line flags to configuration
func applyAPIFlags(cfg *config.Config, enableAPI bool, apiHost string, apiPort int, enableWebSocket bool) {
	if enableAPI {
		cfg.API.Enabled = true
	}
	if apiHost != "" {
		cfg.API.Host = apiHost
	}
	if apiPort > 0 {
		cfg.API.Port = apiPort
	}
	if enableWebSocket {
		cfg.API.EnableWebSocket = true
	}
}

// storageConfig maps the loaded configuration onto the state store config
func storageConfig(cfg *config.Config) *storage.Config {
	sc := storage.DefaultConfig()
	sc.Backend = cfg.Storage.Backend
	sc.Path = cfg.Storage.Path
	sc.RedisAddr = cfg.Storage.Redis.Addr
	sc.RedisPassword = cfg.Storage.Redis.Password
	sc.RedisDB = cfg.Storage.Redis.DB
	return sc
}

// busConfig maps the loaded configuration onto the event publisher config
func busConfig(cfg *config.Config) *eventbus.Config {
	bc := eventbus.DefaultConfig()
	bc.Backend = cfg.EventBus.Backend
	bc.RedisAddr = cfg.EventBus.Redis.Addr
	bc.RedisPassword = cfg.EventBus.Redis.Password
	bc.RedisDB = cfg.EventBus.Redis.DB
	bc.RedisChannel = cfg.EventBus.Redis.Channel
	bc.KafkaBrokers = cfg.EventBus.Kafka.Brokers
	bc.KafkaTopic = cfg.EventBus.Kafka.Topic
	bc.KafkaClientID = cfg.EventBus.Kafka.ClientID
	bc.KafkaBatchSize = cfg.EventBus.Kafka.BatchSize
	bc.KafkaLingerMs = cfg.EventBus.Kafka.LingerMs
	bc.KafkaRequiredAcks = cfg.EventBus.Kafka.RequiredAcks
	bc.KafkaAsync = cfg.EventBus.Kafka.Async
	return bc
}

// monitorConfig maps the loaded configuration onto the monitor service
// config. Disabled chains are dropped here.
func monitorConfig(cfg *config.Config) *monitor.Config {
	chains := make([]monitor.ChainConfig, 0, len(cfg.Monitor.Chains))
	for _, chain := range cfg.Monitor.Chains {
		if !chain.Enabled {
			continue
		}
		chains = append(chains, monitor.ChainConfig{
			Name:             chain.Name,
			ChainID:          chain.ChainID,
			RPCEndpoint:      chain.RPCEndpoint,
			RPCTimeout:       chain.RPCTimeout,
			AnnouncerAddress: common.HexToAddress(chain.AnnouncerAddress),
			RegistryAddress:  common.HexToAddress(chain.RegistryAddress),
		})
	}

	return &monitor.Config{
		Chains: chains,
		Scan: monitor.ScanConfig{
			BaseInterval:    cfg.Monitor.Scan.BaseInterval,
			MaxInterval:     cfg.Monitor.Scan.MaxInterval,
			MaxBlockRange:   cfg.Monitor.Scan.MaxBlockRange,
			MaxFailureCount: cfg.Monitor.Scan.MaxFailureCount,
			StartOffset:     cfg.Monitor.Scan.StartOffset,
			FetchAttempts:   cfg.Monitor.Scan.FetchAttempts,
			FetchRetryDelay: cfg.Monitor.Scan.FetchRetryDelay,
		},
		DedupMaxSize:            cfg.Monitor.Dedup.MaxSize,
		DedupCleanupInterval:    cfg.Monitor.Dedup.CleanupInterval,
		RegistryRefreshInterval: cfg.Monitor.Registry.RefreshInterval,
	}
}

// initLogger initializes the logger based on configuration
func initLogger(level, format string) (*zap.Logger, error) {
	if format == "json" {
		return logger.New(&logger.Config{
			Level:    level,
			Encoding: "json",
		})
	}

	// Default to development logger
	return logger.New(&logger.Config{
		Level:       level,
		Encoding:    "console",
		Development: true,
	})
}
