package rescache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"scout-api/internal/logger"
)

// 文档注释：Redis 结果缓存层
// 背景：多实例部署时共享命中；TTL 交给 Redis 管理，读写失败只记日志不影响主流程。
// 约束：键带 scout: 前缀与用途段，避免与同库其它业务冲突。
type Redis struct {
	cli    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(cli *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{cli: cli, prefix: prefix, ttl: ttl}
}

func (c *Redis) Name() string { return "redis" }

func (c *Redis) Get(ctx context.Context, k string) ([]byte, bool) {
	if c.cli == nil {
		return nil, false
	}
	v, err := c.cli.Get(ctx, c.prefix+k).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.L().Warn("redis_get_fail", "err", err.Error())
		}
		return nil, false
	}
	return v, true
}

func (c *Redis) Set(ctx context.Context, k string, v []byte) {
	if c.cli == nil {
		return
	}
	if err := c.cli.Set(ctx, c.prefix+k, v, c.ttl).Err(); err != nil {
		logger.L().Warn("redis_set_fail", "err", err.Error())
	}
}

// Flush：删除本前缀下的全部键
func (c *Redis) Flush(ctx context.Context) {
	if c.cli == nil {
		return
	}
	iter := c.cli.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.cli.Del(ctx, iter.Val()).Err()
	}
	if err := iter.Err(); err != nil {
		logger.L().Warn("redis_flush_fail", "err", err.Error())
	}
}
