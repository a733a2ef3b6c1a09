package report

import (
	"context"
	"time"

	"metahft/internal/state"
	"metahft/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

// RedisClient is the subset of *redis.Client the sink uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisSink publishes every snapshot on a channel and keeps the latest one
// under key so late subscribers can read it.
type RedisSink struct {
	client  RedisClient
	channel string
	key     string
	ttl     time.Duration
}

func NewRedisSink(client RedisClient, channel, key string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, channel: channel, key: key, ttl: ttl}
}

func (s *RedisSink) Report(ctx context.Context, snap state.Snapshot) error {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return errors.Wrapf(exception.ErrReportEncode, "%v", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return errors.Wrapf(exception.ErrReportPublish, "channel %s, err: %v", s.channel, err)
	}
	if s.key == "" {
		return nil
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return errors.Wrapf(exception.ErrReportPublish, "key %s, err: %v", s.key, err)
	}
	return nil
}
