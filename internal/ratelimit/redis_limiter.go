package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts sends per destination in Redis with a fixed-expiry
// window. The increment is atomic, so concurrent sends to the same
// destination cannot slip past the cap via read-then-write races.
//
// When the store is unreachable the limiter fails open: the send is
// allowed and the error is logged. A quota miss costs money; dropping
// every send during a Redis outage costs more.
type RedisLimiter struct {
	rdb    *redis.Client
	cap    int
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, cap int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cap: cap, window: window}
}

func (l *RedisLimiter) CheckAndConsume(ctx context.Context, destination string) Decision {
	key := fmt.Sprintf("ratelimit:sms:%s", destination)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		slog.Error("rate limit store unreachable, failing open", "destination", destination, "error", err)
		return Decision{Allowed: true}
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			slog.Error("failed to set rate limit window", "destination", destination, "error", err)
		}
	}

	if count <= int64(l.cap) {
		return Decision{Allowed: true}
	}

	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return Decision{Allowed: false, ResetAt: time.Now().Add(ttl)}
}
