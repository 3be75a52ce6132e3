package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
)

const (
	prefixRateLimit = "ratelimit:"
)

// RateLimiter provides sliding-window rate limiting backed by Redis.
// The broadcaster uses it to keep outbound Telegram sends under the API
// ceiling, and the bulk metadata refresh job uses it against the metadata
// provider's published per-second limit.
type RateLimiter struct {
	client *Client
	log    logger.Logger
}

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Key    string        // Unique key for rate limiting (e.g., "telegram:send")
	Limit  int           // Maximum number of requests
	Window time.Duration // Time window for the limit
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		log:    log.With(logger.F("component", "ratelimiter")),
	}
}

// Allow checks if an action is allowed under the rate limit.
// The ZSET window trim, count and insert run in one Lua script so two
// concurrent callers cannot both claim the last slot.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, error) {
	key := prefixRateLimit + cfg.Key
	now := time.Now().UnixMilli()
	windowStart := now - cfg.Window.Milliseconds()

	script := `
		redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
		local count = redis.call('ZCARD', KEYS[1])
		if count < tonumber(ARGV[2]) then
			redis.call('ZADD', KEYS[1], ARGV[3], ARGV[3])
			redis.call('PEXPIRE', KEYS[1], ARGV[4])
			return 1
		else
			return 0
		end
	`

	result, err := r.client.Eval(ctx, script, []string{key},
		windowStart,                 // ARGV[1]: window start timestamp
		cfg.Limit,                   // ARGV[2]: max limit
		now,                         // ARGV[3]: current timestamp
		cfg.Window.Milliseconds()*2, // ARGV[4]: key expiration (2x window)
	)
	if err != nil {
		r.log.Error("rate limit check failed",
			logger.F("error", err),
			logger.F("key", cfg.Key),
		)
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed, _ := result.(int64)

	if allowed != 1 {
		r.log.Debug("rate limit exceeded",
			logger.F("key", cfg.Key),
			logger.F("limit", cfg.Limit),
			logger.F("window", cfg.Window),
		)
	}

	return allowed == 1, nil
}

// WaitForSlot waits until a slot becomes available or context is cancelled
func (r *RateLimiter) WaitForSlot(ctx context.Context, cfg RateLimitConfig) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		allowed, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reset resets the rate limit for a key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, prefixRateLimit+key)
}
