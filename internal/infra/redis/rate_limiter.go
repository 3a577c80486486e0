package redis

import (
	"context"
	"strconv"
	"time"

	"collective-ledger/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter counts hits per key in fixed windows aligned to the clock.
// Billing keys it by host ("billing:host:<id>") so a host that went over its
// charges-per-minute budget waits for the next window, not for a sliding one.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow reports whether one more hit on key fits in the current window.
// A limit <= 0 means unlimited and does not touch redis.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	bucket := windowKey(key, r.now(), window)
	count, err := r.client.Incr(ctx, bucket)
	if err != nil {
		return false, err
	}
	if count == 1 {
		// the bucket is dead once its window ends; keep one more window of slack
		if err := r.client.Expire(ctx, bucket, 2*window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

func windowKey(key string, at time.Time, window time.Duration) string {
	return key + ":" + strconv.FormatInt(at.UnixNano()/int64(window), 10)
}
