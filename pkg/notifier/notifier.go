// Package notifier delivers notification requests to the external
// notification API. Per-user throttling is the dispatcher's job; the
// sender only paces and signs the outbound requests.
package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
const SignatureHeader = "X-Signature-256"

// Notification is one notification request for one user.
type Notification struct {
	ID        string              `json:"id"`
	UserID    string              `json:"userId"`
	Kind      types.EventKind     `json:"kind"`
	Message   string              `json:"message"`
	Event     *types.StealthEvent `json:"event"`
	CreatedAt time.Time           `json:"createdAt"`
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// Config holds notification API client configuration.
type Config struct {
	// Endpoint is the base URL of the notification API. Empty selects the
	// log-only sender, for local development.
	Endpoint string

	// AuthToken is sent as a bearer token when set.
	AuthToken string

	// SigningSecret enables HMAC-SHA256 request signing when set.
	SigningSecret string

	// Timeout bounds each request.
	Timeout time.Duration

	// RateLimit and RateBurst pace requests to the API across all chains.
	RateLimit float64
	RateBurst int
}

// New creates the sender the configuration calls for.
func New(config *Config, logger *zap.Logger) (Sender, error) {
	if config == nil || config.Endpoint == "" {
		return NewLogSender(logger), nil
	}
	return NewHTTPSender(config, logger)
}

// HTTPSender posts notifications to the notification API.
type HTTPSender struct {
	config  *Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPSender creates an HTTP-backed sender.
func NewHTTPSender(config *Config, logger *zap.Logger) (*HTTPSender, error) {
	if config == nil || config.Endpoint == "" {
		return nil, fmt.Errorf("notifier endpoint is required")
	}

	parsed, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid notifier endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("notifier endpoint must use http or https scheme")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	limit := config.RateLimit
	if limit <= 0 {
		limit = constants.DefaultNotifierRateLimit
	}
	burst := config.RateBurst
	if burst <= 0 {
		burst = constants.DefaultNotifierRateBurst
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPSender{
		config: config,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		logger:  logger.Named("notifier"),
	}, nil
}

// Send delivers one notification. It blocks for a rate limiter token
// first, so a burst of on-chain events cannot hammer the API.
func (s *HTTPSender) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint+"/v1/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stealth-monitor/1.0")
	req.Header.Set("X-Notification-ID", n.ID)
	if s.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.AuthToken)
	}
	if s.config.SigningSecret != "" {
		req.Header.Set(SignatureHeader, "sha256="+computeSignature(payload, s.config.SigningSecret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024*10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification API returned status %d", resp.StatusCode)
	}

	s.logger.Debug("notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.Int("status_code", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// computeSignature computes the HMAC-SHA256 signature for the payload.
func computeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies a request signature. Notification API
// implementations use it to authenticate the monitor's requests.
func VerifySignature(payload []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(expected, mac.Sum(nil))
}

// LogSender writes notifications to the log instead of an API. It backs
// local development, where no notification service is running.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger.Named("notifier")}
}

// Send logs the notification and reports success.
func (s *LogSender) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("kind", string(n.Kind)),
		zap.String("message", n.Message),
	}
	if n.Event != nil {
		fields = append(fields, zap.String("event_id", n.Event.ID().String()))
	}
	s.logger.Info("notification (log only)", fields...)
	return nil
}
