package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RunLock serializes reminder cycles across instances. The TTL only covers
// the expected duration of one cycle, never a whole day: a rerun later the
// same day must be able to take the lock again so a crashed or partial run
// can be repaired.
type RunLock struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunLock creates a run lock with the given hold TTL.
func NewRunLock(client *Client, logger *zap.Logger, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RunLock{client: client, logger: logger, ttl: ttl}
}

// Acquire attempts to take the lock for the given scope, "daily" for the
// scheduled cycle or a property ID for manual runs. It returns false
// without error when another instance currently holds it.
func (l *RunLock) Acquire(ctx context.Context, scope string) (bool, error) {
	key := fmt.Sprintf("reminders:runlock:%s", scope)

	ok, err := l.client.rdb.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		l.logger.Info("reminder cycle already running",
			zap.String("scope", scope),
		)
	}
	return ok, nil
}

// Release frees the lock so a new cycle can start before the TTL expires.
func (l *RunLock) Release(ctx context.Context, scope string) error {
	key := fmt.Sprintf("reminders:runlock:%s", scope)
	if err := l.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
