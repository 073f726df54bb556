package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter keyed per caller.
type RateLimiter struct {
	c      redis.Cmdable
	prefix string
}

func NewRateLimiter(c redis.Cmdable, prefix string) *RateLimiter {
	return &RateLimiter{c: c, prefix: prefix}
}

// Allow returns whether this call is within limit and the current count.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := rl.prefix + key
	n, err := rl.c.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	// the first hit opens the window; later hits must not extend it
	if n == 1 {
		if err := rl.c.Expire(ctx, k, window).Err(); err != nil {
			return false, 0, errors.Wrap(err, "redis ratelimit expire")
		}
	}
	return n <= limit, n, nil
}
