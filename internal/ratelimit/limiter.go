// Package ratelimit implements a per-user fixed-window request limiter on
// top of Redis counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// ErrLimited is returned when the caller exhausted the current window.
var ErrLimited = errors.New("rate limited")

// ErrUnavailable wraps Redis failures.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Config holds limiter tuning parameters.
type Config struct {
	Limit  int
	Window time.Duration
}

// Limiter admits at most Limit requests per user in each fixed window. The
// window starts with the first request and is not sliding, so a burst that
// straddles two windows can briefly admit up to twice the limit.
//
// The check reads the counter before incrementing it. Concurrent requests
// from the same user can therefore overshoot the limit by a few requests.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Limit < 1 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Limiter{redis: client, config: cfg}
}

// Key returns the counter key for a user.
func Key(userID int) string {
	return "user:" + strconv.Itoa(userID) + ":requests"
}

// Allow counts one request for userID. It returns ErrLimited when the window
// is exhausted, leaving the counter untouched.
func (l *Limiter) Allow(ctx context.Context, userID int) error {
	key := Key(userID)

	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !isWrongType(err) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		// A key of another type is overwritten and starts a new window.
		if err := l.redis.Set(ctx, key, 1, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	if count >= int64(l.config.Limit) {
		return ErrLimited
	}

	if err := l.redis.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func isWrongType(err error) bool {
	return strings.HasPrefix(err.Error(), "WRONGTYPE")
}

// RetryAfter reports how long until the user's window resets. Zero means no
// window is open.
func (l *Limiter) RetryAfter(ctx context.Context, userID int) time.Duration {
	ttl, err := l.redis.TTL(ctx, Key(userID)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

// Limit returns the number of requests admitted per window.
func (l *Limiter) Limit() int {
	return l.config.Limit
}
