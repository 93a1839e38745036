package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a key exceeded its request budget
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitStatus describes the budget left for a key after a request
type RateLimitStatus struct {
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	redis *database.Redis
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow records a request for key using a sliding window log.
// When the window is full it returns ErrRateLimited and RetryAfter is set.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitStatus, error) {
	now := time.Now()
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	windowStart := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	status := RateLimitStatus{Limit: limit}

	var count *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.redis.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "0", windowStart)
		count = pipe.ZCard(ctx, redisKey)
		oldest = pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
		return nil
	})
	if err != nil {
		return status, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	if count.Val() >= int64(limit) {
		status.RetryAfter = window
		if entries := oldest.Val(); len(entries) > 0 {
			oldestAt := time.UnixMilli(int64(entries[0].Score))
			status.RetryAfter = window - now.Sub(oldestAt)
		}
		return status, ErrRateLimited
	}

	_, err = r.redis.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, redisKey, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: uuid.New().String(),
		})
		pipe.Expire(ctx, redisKey, window+time.Minute)
		return nil
	})
	if err != nil {
		return status, fmt.Errorf("failed to record request: %w", err)
	}

	status.Remaining = limit - int(count.Val()) - 1
	return status, nil
}
