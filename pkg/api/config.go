package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
)

// Config holds API server configuration
type Config struct {
	// Host is the server host (default: localhost)
	Host string

	// Port is the server port (default: 8093)
	Port int

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int

	// ShutdownTimeout is the graceful shutdown timeout
	ShutdownTimeout time.Duration

	// EnableWebSocket enables the live event feed at /ws
	EnableWebSocket bool

	// EnableRateLimit enables per-IP rate limiting middleware
	EnableRateLimit bool

	// RateLimitPerSecond is the number of requests allowed per second per IP
	RateLimitPerSecond float64

	// RateLimitBurst is the maximum burst size
	RateLimitBurst int
}

// DefaultConfig returns a default API server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:               constants.DefaultAPIHost,
		Port:               constants.DefaultAPIPort,
		ReadTimeout:        constants.DefaultReadTimeout,
		WriteTimeout:       constants.DefaultWriteTimeout,
		IdleTimeout:        constants.DefaultIdleTimeout,
		MaxHeaderBytes:     constants.DefaultMaxHeaderBytes,
		ShutdownTimeout:    constants.DefaultShutdownTimeout,
		EnableWebSocket:    true,
		EnableRateLimit:    false, // Disabled by default for development
		RateLimitPerSecond: constants.DefaultRateLimitPerSecond,
		RateLimitBurst:     constants.DefaultRateLimitBurst,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}
	if c.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("max header bytes must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.EnableRateLimit && c.RateLimitPerSecond <= 0 {
		return errors.New("rate limit per second must be positive when rate limiting is enabled")
	}
	if c.EnableRateLimit && c.RateLimitBurst <= 0 {
		return errors.New("rate limit burst must be positive when rate limiting is enabled")
	}

	return nil
}

// Address returns the server address in host:port format
func (c *Config) Address() string {
	return c.Host + ":" + fmt.Sprintf("%d", c.Port)
}
