// Package fetch retrieves contract event logs from a chain RPC endpoint
// with bounded retries. Retries cover short transient faults such as a
// dropped connection or a rate-limited request; persistent failures are
// surfaced to the caller as a *FetchError after the attempt budget is
// spent.
package fetch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ChainReader is the subset of chain client functionality the fetcher
// needs. *client.Client satisfies it.
type ChainReader interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Config holds fetcher configuration.
type Config struct {
	// Chain names the chain this fetcher reads, used in logs and errors.
	Chain string

	// MaxAttempts is the total number of tries per fetch, including the first.
	MaxAttempts int

	// RetryDelay is the base delay between attempts. The wait before
	// attempt n+1 is n*RetryDelay.
	RetryDelay time.Duration
}

// Validate validates the fetcher configuration.
func (c *Config) Validate() error {
	if c.Chain == "" {
		return fmt.Errorf("chain name is required")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive")
	}
	return nil
}

// FetchError reports a log fetch that failed on every attempt.
type FetchError struct {
	Chain     string
	FromBlock uint64
	ToBlock   uint64
	Attempts  int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch logs for %s blocks [%d, %d] after %d attempts: %v",
		e.Chain, e.FromBlock, e.ToBlock, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher fetches event logs for one chain.
type Fetcher struct {
	reader ChainReader
	config *Config
	logger *zap.Logger
}

// NewFetcher creates a new Fetcher instance.
func NewFetcher(reader ChainReader, config *Config, logger *zap.Logger) (*Fetcher, error) {
	if reader == nil {
		return nil, fmt.Errorf("chain reader is required")
	}
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetcher config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		reader: reader,
		config: config,
		logger: logger,
	}, nil
}

// HeadHeight returns the latest block number of the chain.
func (f *Fetcher) HeadHeight(ctx context.Context) (uint64, error) {
	return f.reader.GetLatestBlockNumber(ctx)
}

// FetchLogs fetches the logs emitted by the given contracts in the inclusive
// block range [fromBlock, toBlock], retrying transient failures. On success
// the logs are returned in the order the node reports them. If every attempt
// fails the returned error is a *FetchError wrapping the last attempt's
// error. Context cancellation aborts the fetch immediately, including
// mid-wait, and returns the context's error.
func (f *Fetcher) FetchLogs(ctx context.Context, addresses []common.Address, topics [][]common.Hash, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    topics,
	}

	var lastErr error
	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * f.config.RetryDelay
			f.logger.Warn("Retrying log fetch",
				zap.String("chain", f.config.Chain),
				zap.Uint64("from_block", fromBlock),
				zap.Uint64("to_block", toBlock),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		logs, err := f.reader.FilterLogs(ctx, query)
		if err == nil {
			return logs, nil
		}
		lastErr = err

		// A canceled context is shutdown, not a chain fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &FetchError{
		Chain:     f.config.Chain,
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Attempts:  f.config.MaxAttempts,
		Err:       lastErr,
	}
}
