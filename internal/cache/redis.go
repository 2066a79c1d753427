package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ConnectRedis initializes and returns a Redis client instance.
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", addr).Int("db", db).Msg("connected to Redis")
	return rdb, nil
}

// DisconnectRedis closes the Redis client connection.
func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	log.Info().Msg("Redis connection closed")
	return nil
}

// WindowCounter counts hits per key in fixed windows stored in Redis, so
// several API instances share one budget.
type WindowCounter struct {
	client *redis.Client
	prefix string
}

func NewWindowCounter(client *redis.Client, prefix string) *WindowCounter {
	return &WindowCounter{client: client, prefix: prefix}
}

// Hit increments the counter for key in the current window and returns the new count.
// The first hit in a window sets its expiry.
func (c *WindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	slot := time.Now().UnixNano() / int64(window)
	k := fmt.Sprintf("%s:%s:%d", c.prefix, key, slot)

	n, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count hit for %s: %w", key, err)
	}
	if n == 1 {
		if err := c.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to expire window for %s: %w", key, err)
		}
	}
	return n, nil
}
