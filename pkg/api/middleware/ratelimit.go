package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// limiterTTL is how long an idle per-IP limiter is kept before the
// cleanup sweep drops it.
const limiterTTL = 10 * time.Minute

// RateLimiter tracks one token bucket per client IP. Idle buckets are
// swept periodically so the map stays bounded.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	logger   *zap.Logger
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a rate limiter allowing ratePerSecond sustained
// requests with the given burst per IP.
func NewRateLimiter(ratePerSecond float64, burst int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry, 256),
		rate:     rate.Limit(ratePerSecond),
		burst:    burst,
		logger:   logger,
	}
	go rl.sweep()
	return rl
}

// sweep drops limiters idle for longer than the TTL. It runs for the
// life of the process, like the middleware itself.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(limiterTTL)
	defer ticker.Stop()
	for range ticker.C {
		rl.removeStale(time.Now())
	}
}

func (rl *RateLimiter) removeStale(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := now.Add(-limiterTTL)
	for ip, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// Allow reports whether a request from the given IP may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// LimiterCount returns the number of tracked IPs.
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimit returns a middleware rejecting requests over the per-IP
// limit with 429 and a Retry-After hint.
func RateLimit(ratePerSecond float64, burst int, logger *zap.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(ratePerSecond, burst, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r)

			if !limiter.Allow(ip) {
				logger.Warn("Rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP resolves the client IP, preferring forwarded headers
// when they carry a parseable address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip := strings.TrimSpace(xri)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
