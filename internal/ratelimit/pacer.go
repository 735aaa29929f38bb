package ratelimit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

// Pacer enforces a minimum spacing between outbound calls. With Redis
// available the spacing is shared by every process using the same key,
// otherwise an in-memory token bucket is used.
type Pacer struct {
	interval     time.Duration
	key          string
	local        *rate.Limiter
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient

	waits         atomic.Int64
	redisFailures atomic.Int64
}

// NewPacer creates a pacer allowing one call per interval. A zero interval
// disables pacing. redisClient may be nil.
func NewPacer(interval time.Duration, key string, redisClient *RedisClient) *Pacer {
	p := &Pacer{
		interval:    interval,
		key:         "pacer:" + key,
		redisClient: redisClient,
	}
	if interval <= 0 {
		return p
	}

	p.local = rate.NewLimiter(rate.Every(interval), 1)

	if redisClient.IsEnabled() {
		p.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis pacer initialized", "key", p.key, "interval", interval)
	}

	return p
}

// Wait blocks until the next call may proceed or ctx is done
func (p *Pacer) Wait(ctx context.Context) error {
	if p.local == nil {
		return nil
	}
	p.waits.Add(1)

	if p.redisLimiter != nil {
		err := p.waitRedis(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}
		p.redisFailures.Add(1)
		slog.Warn("Redis pacer failed, using in-memory fallback", "key", p.key, "error", err)
	}

	return p.local.Wait(ctx)
}

func (p *Pacer) waitRedis(ctx context.Context) error {
	limit := redis_rate.Limit{
		Rate:   1,
		Burst:  1,
		Period: p.interval,
	}

	for {
		res, err := p.redisLimiter.Allow(ctx, p.key, limit)
		if err != nil {
			return err
		}
		if res.Allowed > 0 {
			return nil
		}

		delay := res.RetryAfter
		if delay <= 0 {
			delay = p.interval / 10
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stats reports pacer activity for the component health endpoint
func (p *Pacer) Stats() map[string]interface{} {
	return map[string]interface{}{
		"interval_ms":    p.interval.Milliseconds(),
		"shared":         p.redisLimiter != nil,
		"waits":          p.waits.Load(),
		"redis_failures": p.redisFailures.Load(),
	}
}
