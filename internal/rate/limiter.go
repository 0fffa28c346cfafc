package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Config holds throttle limits. MaxIPAttempts <= 0 disables the per-address quota.
type Config struct {
	MaxAttempts   int
	MaxIPAttempts int
	Window        time.Duration
}

// Decision is the outcome of one TryConsume call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects login attempts.
type Limiter struct {
	redis  redis.UniversalClient
	keys   session.Keys
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, keys session.Keys, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		keys:   keys,
		config: cfg,
	}
}

// TryConsume records one attempt for identifier (and ip, when non-empty) and
// reports whether it falls within quota. The per-identifier counter is always
// incremented first so a rejected address still burns identifier quota.
func (l *Limiter) TryConsume(ctx context.Context, identifier, ip string) (Decision, error) {
	key := l.keys.Attempts(identifier)
	count, err := l.incrementWithTTL(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	dec := Decision{Allowed: true, Remaining: remaining(l.config.MaxAttempts, count)}
	if count > int64(l.config.MaxAttempts) {
		dec.Allowed = false
		dec.RetryAfter = l.retryAfter(ctx, key)
	}

	if l.config.MaxIPAttempts > 0 && ip != "" {
		ipKey := l.keys.AttemptsIP(ip)
		ipCount, err := l.incrementWithTTL(ctx, ipKey)
		if err != nil {
			return Decision{}, err
		}
		if r := remaining(l.config.MaxIPAttempts, ipCount); r < dec.Remaining {
			dec.Remaining = r
		}
		if ipCount > int64(l.config.MaxIPAttempts) {
			dec.Allowed = false
			if ra := l.retryAfter(ctx, ipKey); ra > dec.RetryAfter {
				dec.RetryAfter = ra
			}
		}
	}

	return dec, nil
}

// Attempts returns the current counter for identifier. Missing keys read as zero.
func (l *Limiter) Attempts(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, l.keys.Attempts(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the counters for identifier and ip. It is an administrative
// operation; successful logins do not call it.
func (l *Limiter) Reset(ctx context.Context, identifier, ip string) error {
	keys := []string{l.keys.Attempts(identifier)}
	if ip != "" {
		keys = append(keys, l.keys.AttemptsIP(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: only the first hit sets the expiry.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// retryAfter reads the window's remaining time. A counter that lost its
// expiry is given a fresh window so it cannot lock an identifier forever.
func (l *Limiter) retryAfter(ctx context.Context, key string) time.Duration {
	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return l.config.Window
	}
	if ttl < 0 {
		_ = l.redis.Expire(ctx, key, l.config.Window).Err()
		return l.config.Window
	}
	return ttl
}

func remaining(max int, count int64) int {
	r := int64(max) - count
	if r < 0 {
		return 0
	}
	return int(r)
}
