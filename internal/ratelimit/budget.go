// Package ratelimit paces outbound requests to the CCASS source.
//
// The budget is a fixed-window counter kept in Redis so that every replica
// of the tracker draws from the same allowance.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultRequestsPerWindow = 8
	DefaultWindowSize        = time.Second
	DefaultMaxWait           = 30 * time.Second
)

// KeyPrefixRequests is the Redis key prefix for per-window request counters.
const KeyPrefixRequests = "ccass:budget:"

// ErrMaxWaitExceeded is returned when the maximum wait time for budget is exceeded.
var ErrMaxWaitExceeded = errors.New("maximum wait time exceeded waiting for request budget")

// consumeScript atomically checks and increments the window counter.
var consumeScript = redis.NewScript(`
	local key = KEYS[1]
	local budget = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local used = tonumber(redis.call('GET', key) or '0')
	if used + 1 > budget then
		return {0, used}
	end

	redis.call('INCR', key)
	redis.call('EXPIRE', key, ttl)
	return {1, used + 1}
`)

// RequestBudget coordinates outbound request counts across replicas using Redis.
type RequestBudget struct {
	redis      redis.Cmdable
	budget     int
	windowSize time.Duration
	maxWait    time.Duration
	keyTTL     time.Duration
}

// RequestBudgetConfig holds configuration for the request budget.
type RequestBudgetConfig struct {
	// Redis is the client used for cross-replica coordination. Required.
	Redis redis.Cmdable

	// RequestsPerWindow is the number of requests allowed per window. Default: 8.
	RequestsPerWindow int

	// WindowSize is the fixed window duration. Default: 1s.
	WindowSize time.Duration

	// MaxWait bounds how long Wait blocks before giving up. Default: 30s.
	MaxWait time.Duration
}

// UsageStats contains the consumption of the current window.
type UsageStats struct {
	Used        int       `json:"used"`
	Budget      int       `json:"budget"`
	WindowStart time.Time `json:"window_start"`
}

// Validate checks if the configuration is valid.
func (c *RequestBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.RequestsPerWindow < 0 {
		return errors.New("requests per window cannot be negative")
	}
	if c.WindowSize < 0 {
		return errors.New("window size cannot be negative")
	}
	if c.MaxWait < 0 {
		return errors.New("max wait cannot be negative")
	}
	return nil
}

// NewRequestBudget creates a new budget with the given configuration.
func NewRequestBudget(cfg *RequestBudgetConfig) (*RequestBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	budget := cfg.RequestsPerWindow
	if budget == 0 {
		budget = DefaultRequestsPerWindow
	}

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}

	maxWait := cfg.MaxWait
	if maxWait == 0 {
		maxWait = DefaultMaxWait
	}

	return &RequestBudget{
		redis:      cfg.Redis,
		budget:     budget,
		windowSize: windowSize,
		maxWait:    maxWait,
		keyTTL:     2 * windowSize,
	}, nil
}

// getWindowTimestamp returns the start of the current window in milliseconds.
func (b *RequestBudget) getWindowTimestamp() int64 {
	return time.Now().Truncate(b.windowSize).UnixMilli()
}

func (b *RequestBudget) windowKey(windowTS int64) string {
	return KeyPrefixRequests + strconv.FormatInt(windowTS, 10)
}

// TryConsume attempts to take one request from the current window.
// When denied it returns the time until the next window starts.
func (b *RequestBudget) TryConsume(ctx context.Context) (bool, time.Duration, error) {
	windowTS := b.getWindowTimestamp()

	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, b.redis, []string{b.windowKey(windowTS)}, b.budget, ttlSeconds).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("request budget unavailable: %w", err)
	}

	if result[0] != 1 {
		return false, b.calculateWaitTime(windowTS), nil
	}
	return true, 0, nil
}

// Wait blocks until a request may be sent, the context is done or
// the maximum wait is exceeded.
func (b *RequestBudget) Wait(ctx context.Context) error {
	deadline := time.Now().Add(b.maxWait)

	for {
		allowed, waitTime, err := b.TryConsume(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if time.Now().Add(waitTime).After(deadline) {
			return ErrMaxWaitExceeded
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// calculateWaitTime returns the time until the next window starts.
func (b *RequestBudget) calculateWaitTime(windowTS int64) time.Duration {
	windowEnd := time.UnixMilli(windowTS).Add(b.windowSize)
	waitTime := time.Until(windowEnd)
	if waitTime < 0 {
		waitTime = 0
	}
	// Add a small buffer to ensure we're in the new window
	return waitTime + time.Millisecond
}

// GetUsage returns the consumption of the current window.
func (b *RequestBudget) GetUsage(ctx context.Context) (*UsageStats, error) {
	windowTS := b.getWindowTimestamp()

	used, err := b.redis.Get(ctx, b.windowKey(windowTS)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read request budget: %w", err)
	}

	return &UsageStats{
		Used:        used,
		Budget:      b.budget,
		WindowStart: time.UnixMilli(windowTS),
	}, nil
}

// GetBudget returns the configured requests per window.
func (b *RequestBudget) GetBudget() int {
	return b.budget
}

// GetWindowSize returns the configured window size.
func (b *RequestBudget) GetWindowSize() time.Duration {
	return b.windowSize
}

// GetMaxWait returns the configured maximum wait.
func (b *RequestBudget) GetMaxWait() time.Duration {
	return b.maxWait
}
