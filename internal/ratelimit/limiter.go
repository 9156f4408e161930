// Package ratelimit provides Redis-backed rate limiting using INCR + EXPIRE
// fixed windows. Each participant action (next, retry, chat line) and each
// connecting IP address gets its own counter.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule defines a rate limiting policy: the action it guards, the Redis key
// prefix, the maximum number of requests in the window and the window length.
type Rule struct {
	Action string        // reported to clients and used as the metrics label
	Key    string        // Redis key prefix (e.g., "rl:next:", "rl:conn:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleNext allows 20 skips per minute per participant.
	RuleNext = Rule{Action: "queue:next", Key: "rl:next:", Limit: 20, Window: time.Minute}

	// RuleRetry allows 10 retries per minute per participant.
	RuleRetry = Rule{Action: "queue:retry", Key: "rl:retry:", Limit: 10, Window: time.Minute}

	// RuleChat allows 5 chat lines per 10 seconds per participant.
	RuleChat = Rule{Action: "chat:message", Key: "rl:chat:", Limit: 5, Window: 10 * time.Second}

	// RuleConnect allows 20 WebSocket connections per minute per IP.
	RuleConnect = Rule{Action: "connect", Key: "rl:conn:", Limit: 20, Window: time.Minute}
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed bool
	// RetryAfter is how long until the window resets. Set only when the
	// request was rejected.
	RetryAfter time.Duration
}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client redis.Cmdable
	log    *zap.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client redis.Cmdable, logger *zap.Logger) *Limiter {
	return &Limiter{client: client, log: logger}
}

// Allow counts one request by identifier against rule.
//
// On Redis errors the request is allowed and the error returned, so a Redis
// outage never blocks legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (Result, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn("redis INCR failed, failing open", zap.String("key", key), zap.Error(err))
		return Result{Allowed: true}, err
	}

	// The first increment opens the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.log.Warn("redis EXPIRE failed, failing open", zap.String("key", key), zap.Error(err))
			// Without a TTL the key would block the identifier forever.
			l.client.Del(ctx, key)
			return Result{Allowed: true}, err
		}
	}

	if int(count) <= rule.Limit {
		return Result{Allowed: true}, nil
	}

	metrics.RateLimited.WithLabelValues(rule.Action).Inc()
	return Result{RetryAfter: l.retryAfter(ctx, key, rule)}, nil
}

func (l *Limiter) retryAfter(ctx context.Context, key string, rule Rule) time.Duration {
	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return rule.Window
	}
	return ttl
}

// Remaining returns the number of requests the identifier has left in the
// current window. Returns the full limit if the key does not exist yet or
// Redis fails.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		l.log.Warn("redis GET failed, failing open", zap.String("key", key), zap.Error(err))
		return rule.Limit, err
	}

	return max(rule.Limit-count, 0), nil
}
