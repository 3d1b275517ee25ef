// Package userstore loads monitored users from the external user service.
// The monitor only ever reads: user management, preference updates, and
// durable notification history belong to the neighboring service.
package userstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// Store lists the users who opted into stealth event notifications.
type Store interface {
	ListEnabled(ctx context.Context) ([]*types.MonitoredUser, error)
}

// Config holds user store client configuration.
type Config struct {
	// Endpoint is the base URL of the user service. Empty selects the
	// static in-process store, for local development.
	Endpoint string

	// AuthToken is sent as a bearer token when set.
	AuthToken string

	// Timeout bounds each request.
	Timeout time.Duration
}

// New creates the store the configuration calls for.
func New(config *Config, logger *zap.Logger) (Store, error) {
	if config == nil || config.Endpoint == "" {
		return NewStaticStore(), nil
	}
	return NewHTTPStore(config, logger)
}

// HTTPStore fetches the user list from the user service over HTTP.
type HTTPStore struct {
	config *Config
	client *http.Client
	logger *zap.Logger
}

// NewHTTPStore creates an HTTP-backed store.
func NewHTTPStore(config *Config, logger *zap.Logger) (*HTTPStore, error) {
	if config == nil || config.Endpoint == "" {
		return nil, fmt.Errorf("user store endpoint is required")
	}

	parsed, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid user store endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("user store endpoint must use http or https scheme")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPStore{
		config: config,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("userstore"),
	}, nil
}

// listResponse is the wire format of the user service's list endpoint.
type listResponse struct {
	Users []*types.MonitoredUser `json:"users"`
}

// ListEnabled fetches every user with stealth notifications enabled.
func (s *HTTPStore) ListEnabled(ctx context.Context) ([]*types.MonitoredUser, error) {
	endpoint := s.config.Endpoint + "/v1/stealth/users"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user store returned status %d", resp.StatusCode)
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode user store response: %w", err)
	}

	s.logger.Debug("fetched monitored users", zap.Int("count", len(payload.Users)))
	return payload.Users, nil
}
