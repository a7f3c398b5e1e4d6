// Package sessioncache keeps short-lived snapshots of authenticated users
// in Redis so that token checks avoid a database round-trip.
//
// Entries are a projection of the users table, not a source of truth: they
// expire after the configured TTL and are dropped explicitly when the user
// service changes a cached field.
package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/contactbook/apiserver/types"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a snapshot stays valid.
const DefaultTTL = 600 * time.Second

// ErrMiss is returned by Get when there is no usable entry for the subject.
var ErrMiss = errors.New("session cache miss")

const (
	fieldID       = "id"
	fieldUsername = "username"
	fieldEmail    = "email"
	fieldRole     = "role"
	fieldAvatar   = "avatar"
)

// Cache stores user snapshots as Redis hashes keyed by subject.
type Cache struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func New(client redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{redis: client, ttl: ttl}
}

// Key returns the Redis key for a subject.
func Key(subject string) string {
	return "user:" + subject
}

// Get returns the cached snapshot for subject, or ErrMiss. A malformed entry
// is removed and reported as a miss.
func (c *Cache) Get(ctx context.Context, subject string) (types.Identity, error) {
	key := Key(subject)
	fields, err := c.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return types.Identity{}, fmt.Errorf("read session cache: %w", err)
	}
	if len(fields) == 0 {
		return types.Identity{}, ErrMiss
	}

	identity, err := decode(fields)
	if err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return types.Identity{}, ErrMiss
	}
	return identity, nil
}

// Set writes the snapshot under subject with the cache TTL.
func (c *Cache) Set(ctx context.Context, subject string, identity types.Identity) error {
	key := Key(subject)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encode(identity))
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	return nil
}

// Invalidate drops the entries for all given subjects.
func (c *Cache) Invalidate(ctx context.Context, subjects ...string) error {
	keys := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		if subject != "" {
			keys = append(keys, Key(subject))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate session cache: %w", err)
	}
	return nil
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func encode(identity types.Identity) map[string]any {
	return map[string]any{
		fieldID:       strconv.Itoa(identity.ID),
		fieldUsername: identity.Username,
		fieldEmail:    identity.Email,
		fieldRole:     string(identity.Role),
		fieldAvatar:   identity.Avatar,
	}
}

func decode(fields map[string]string) (types.Identity, error) {
	id, err := strconv.Atoi(fields[fieldID])
	if err != nil || id < 1 {
		return types.Identity{}, errors.New("invalid cached id")
	}
	role := types.Role(fields[fieldRole])
	if !role.Valid() {
		return types.Identity{}, errors.New("invalid cached role")
	}
	if fields[fieldUsername] == "" {
		return types.Identity{}, errors.New("missing cached username")
	}
	return types.Identity{
		ID:       id,
		Username: fields[fieldUsername],
		Email:    fields[fieldEmail],
		Role:     role,
		Avatar:   fields[fieldAvatar],
	}, nil
}
