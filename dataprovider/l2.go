package dataprovider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Andrew821667/ai-seo-architects/internal/cache"
)

// RedisL2 基于 Redis 的二级缓存，多个进程共享同一份远端结果
type RedisL2 struct {
	manager *cache.Manager
	prefix  string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisL2 创建二级缓存；prefix 为空时使用 "seoarch:data:"
func NewRedisL2(manager *cache.Manager, prefix string, ttl time.Duration, logger *zap.Logger) *RedisL2 {
	if prefix == "" {
		prefix = "seoarch:data:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisL2{
		manager: manager,
		prefix:  prefix,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "data_l2")),
	}
}

// Get 读取；任何 Redis 错误都视为未命中
func (l *RedisL2) Get(ctx context.Context, key string) (*Result, bool) {
	var r Result
	if err := l.manager.GetJSON(ctx, l.prefix+key, &r); err != nil {
		if !cache.IsCacheMiss(err) {
			l.logger.Warn("l2 get failed", zap.Error(err))
		}
		return nil, false
	}
	return &r, true
}

// Set 写入；失败只记录日志
func (l *RedisL2) Set(ctx context.Context, key string, r *Result) {
	if err := l.manager.SetJSON(ctx, l.prefix+key, r, l.ttl); err != nil {
		l.logger.Warn("l2 set failed", zap.Error(err))
	}
}
