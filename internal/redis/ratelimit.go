package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RateLimitConfig defines rate limiting parameters.
type RateLimitConfig struct {
	Limit  int           // Maximum requests allowed per window
	Window time.Duration // Fixed window size
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter implements fixed-window rate limiting with a Redis counter.
// A counter per (key, window) is incremented and expires with the window;
// the small boundary burst a fixed window permits is acceptable for the
// manual-run and batch endpoints this protects.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
	}
}

// Allow checks if a request is allowed under the rate limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := time.Now()
	windowStart := now.Truncate(r.config.Window)
	resetAt := windowStart.Add(r.config.Window)

	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, windowStart.Unix())

	count, err := r.client.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis incr failed: %w", err)
	}
	if count == 1 {
		if err := r.client.rdb.Expire(ctx, redisKey, r.config.Window).Err(); err != nil {
			return nil, fmt.Errorf("redis expire failed: %w", err)
		}
	}

	if int(count) > r.config.Limit {
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", r.config.Limit),
		)
		return &RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   resetAt,
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: r.config.Limit - int(count),
		ResetAt:   resetAt,
	}, nil
}
