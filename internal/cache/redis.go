package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/contactbook/apiserver/config"
	"github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 5 * time.Second

// Open parses REDIS_URL and returns a connected client.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
