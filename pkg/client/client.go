// Package client provides read-only JSON-RPC access to one monitored chain.
package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Client wraps an Ethereum JSON-RPC connection with the small read surface
// the monitor needs: head height and log queries.
type Client struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	endpoint  string
	logger    *zap.Logger
}

// Config holds client configuration
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewClient dials the endpoint and verifies the connection
func NewClient(cfg *Config) (*Client, error) {
	client, err := NewLazyClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	client.logger.Info("connected to chain RPC",
		zap.String("endpoint", cfg.Endpoint))

	return client, nil
}

// NewLazyClient dials the endpoint without verifying the connection.
// The first RPC call surfaces connection problems; callers that poll with
// backoff use this so a chain outage at boot does not keep the loop from
// starting.
func NewLazyClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rpcClient, err := rpc.Dial(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	return &Client{
		ethClient: ethclient.NewClient(rpcClient),
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		logger:    logger,
	}, nil
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ethClient.ChainID(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// Endpoint returns the endpoint this client is connected to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// GetChainID returns the chain ID reported by the node
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return chainID, nil
}

// GetLatestBlockNumber returns the current head height
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	blockNumber, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return blockNumber, nil
}

// FilterLogs returns the logs matching the query
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}
	return logs, nil
}
