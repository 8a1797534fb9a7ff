package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrCacheMiss 键不存在
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed Manager 已关闭
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config Redis 连接配置
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	// 写入未指定 TTL 时使用
	DefaultTTL time.Duration
	// 建连时的 Ping 超时
	DialTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DefaultTTL:   30 * time.Minute,
		DialTimeout:  5 * time.Second,
	}
}

// Manager Redis 访问层
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewManager 连接 Redis 并校验可达性
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis manager initialized", zap.String("addr", config.Addr), zap.Int("pool_size", config.PoolSize))

	return &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "redis_cache")),
	}, nil
}

// do 在读锁下执行，关闭后返回 ErrClosed
func (m *Manager) do(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn()
}

// Get 读取原始值
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := m.do(func() error {
		val, err := m.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		if err != nil {
			m.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("cache get failed: %w", err)
		}
		out = val
		return nil
	})
	return out, err
}

// Set 写入原始值；ttl 为 0 时使用 DefaultTTL，负数表示不过期
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	return m.do(func() error {
		if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
			m.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("cache set failed: %w", err)
		}
		return nil
	})
}

// GetJSON 读取并反序列化
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON 序列化并写入
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.Set(ctx, key, data, ttl)
}

// Delete 删除键
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return m.do(func() error {
		if err := m.redis.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache delete failed: %w", err)
		}
		return nil
	})
}

// IndexAdd 把 member 以 score 加入有序索引，并只保留分数最高的 keep 个
func (m *Manager) IndexAdd(ctx context.Context, index, member string, score float64, keep int) error {
	return m.do(func() error {
		pipe := m.redis.TxPipeline()
		pipe.ZAdd(ctx, index, redis.Z{Score: score, Member: member})
		if keep > 0 {
			pipe.ZRemRangeByRank(ctx, index, 0, int64(-keep-1))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("cache index add failed: %w", err)
		}
		return nil
	})
}

// IndexRecent 按分数倒序返回最多 n 个成员
func (m *Manager) IndexRecent(ctx context.Context, index string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []string
	err := m.do(func() error {
		members, err := m.redis.ZRevRange(ctx, index, 0, int64(n-1)).Result()
		if err != nil {
			return fmt.Errorf("cache index read failed: %w", err)
		}
		out = members
		return nil
	})
	return out, err
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	return m.do(func() error { return m.redis.Ping(ctx).Err() })
}

// Close 关闭连接；重复调用安全
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing redis manager")
	return m.redis.Close()
}
