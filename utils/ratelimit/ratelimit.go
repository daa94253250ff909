// Package ratelimit is a redis fixed-window counter shared by every API node.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule allows Limit hits per Window.
type Rule struct {
	Limit  int64
	Window time.Duration
}

// Limiter counts hits per key in fixed windows.
type Limiter struct {
	redis    *redis.Client
	logger   *zap.Logger
	scope    string
	rule     Rule
	failOpen bool
	now      func() time.Time
}

// NewLimiter builds a limiter for one scope, e.g. "send". With failOpen set a
// redis outage lets requests through instead of rejecting them.
func NewLimiter(client *redis.Client, logger *zap.Logger, scope string, rule Rule, failOpen bool) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		redis:    client,
		logger:   logger,
		scope:    scope,
		rule:     rule,
		failOpen: failOpen,
		now:      time.Now,
	}
}

// Allow records one hit for key and reports whether it is within the rule.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN records n hits at once.
func (l *Limiter) AllowN(ctx context.Context, key string, n int64) (bool, error) {
	if l.rule.Limit <= 0 || l.rule.Window <= 0 {
		return true, nil
	}
	bucket := l.bucketKey(key, l.now())

	pipe := l.redis.TxPipeline()
	incr := pipe.IncrBy(ctx, bucket, n)
	pipe.Expire(ctx, bucket, l.rule.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit unavailable, allowing", zap.String("key", bucket), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	count := incr.Val()
	if count > l.rule.Limit {
		l.logger.Debug("rate limit exceeded",
			zap.String("scope", l.scope),
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int64("limit", l.rule.Limit),
		)
		return false, nil
	}
	return true, nil
}

// Remaining returns how many hits key has left in the current window.
func (l *Limiter) Remaining(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Get(ctx, l.bucketKey(key, l.now())).Int64()
	if errors.Is(err, redis.Nil) {
		return l.rule.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rate limit remaining: %w", err)
	}
	return max(l.rule.Limit-count, 0), nil
}

// Reset clears the current window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, l.bucketKey(key, l.now())).Err()
}

func (l *Limiter) bucketKey(key string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", l.scope, key, now.UnixNano()/int64(l.rule.Window))
}
