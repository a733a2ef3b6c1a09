package conn

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

// RedisOption defines connection options for Redis.
type RedisOption struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// NewRedis creates a client and pings it.
func NewRedis(ctx context.Context, option RedisOption) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       option.Addr,
		Password:   option.Password,
		DB:         option.DB,
		PoolSize:   option.PoolSize,
		MaxRetries: option.MaxRetries,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", option.Addr)
	}
	return rdb, nil
}
