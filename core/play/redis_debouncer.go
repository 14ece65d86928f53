package play

import (
	"context"
	"fmt"
	"time"

	"WaveFM/logger"

	"github.com/go-redis/redis/v8"
)

// RedisDebouncer shares debounce state across instances via SET NX with a
// TTL equal to the debounce window. Used when the service scales
// horizontally and per-process counting would multiply plays.
type RedisDebouncer struct {
	client *redis.Client
	window time.Duration
}

// NewRedisDebouncer creates the Redis-backed backend.
func NewRedisDebouncer(client *redis.Client, window time.Duration) *RedisDebouncer {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &RedisDebouncer{client: client, window: window}
}

func debounceKey(trackID, userID int64) string {
	return fmt.Sprintf("play:debounce:%d:%d", trackID, userID)
}

// ShouldCount implements Debouncer. Redis errors are resolved toward not
// counting: an unreachable Redis must not inflate play counts, and it must
// never delay the stream response either way.
func (d *RedisDebouncer) ShouldCount(ctx context.Context, trackID, userID int64) bool {
	ok, err := d.client.SetNX(ctx, debounceKey(trackID, userID), 1, d.window).Result()
	if err != nil {
		logger.Warn("play debounce check failed",
			logger.Int64("trackId", trackID),
			logger.Int64("userId", userID),
			logger.ErrorField(err))
		return false
	}
	return ok
}
