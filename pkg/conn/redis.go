package conn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisAddr        = "localhost:6379"
	defaultRedisPingTimeout = 3 * time.Second
)

// RedisOption defines connection options for Redis.
type RedisOption struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis creates a Redis client from the provided options and verifies
// the connection with a ping.
func NewRedis(ctx context.Context, option RedisOption) (*redis.Client, error) {
	addr := option.Addr
	if addr == "" {
		addr = defaultRedisAddr
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: option.Password,
		DB:       option.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultRedisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
