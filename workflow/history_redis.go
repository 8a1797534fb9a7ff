package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Andrew821667/ai-seo-architects/internal/cache"
)

// Redis 执行历史存储默认值
const (
	DefaultHistoryPrefix = "seoarch:history:"
	DefaultHistoryTTL    = 7 * 24 * time.Hour
	DefaultHistoryKeep   = 1000
)

// RedisHistoryStore 基于 Redis 的执行历史存储。
// 每次运行一个 JSON 键，另有一个按开始时间排序的索引。
type RedisHistoryStore struct {
	manager *cache.Manager
	prefix  string
	ttl     time.Duration
	keep    int
	logger  *zap.Logger
}

// NewRedisHistoryStore 创建 Redis 存储，ttl<=0 使用默认保留时间
func NewRedisHistoryStore(manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisHistoryStore {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisHistoryStore{
		manager: manager,
		prefix:  DefaultHistoryPrefix,
		ttl:     ttl,
		keep:    DefaultHistoryKeep,
		logger:  logger.With(zap.String("component", "history_store")),
	}
}

func (s *RedisHistoryStore) key(runID string) string { return s.prefix + "run:" + runID }
func (s *RedisHistoryStore) index() string          { return s.prefix + "index" }

// Save implements HistoryStore.
func (s *RedisHistoryStore) Save(ctx context.Context, h *ExecutionHistory) error {
	h.mu.RLock()
	err := s.manager.SetJSON(ctx, s.key(h.RunID), h, s.ttl)
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("save history %s: %w", h.RunID, err)
	}
	score := float64(h.StartTime.UnixNano())
	if err := s.manager.IndexAdd(ctx, s.index(), h.RunID, score, s.keep); err != nil {
		return fmt.Errorf("index history %s: %w", h.RunID, err)
	}
	return nil
}

// Get implements HistoryStore.
func (s *RedisHistoryStore) Get(ctx context.Context, runID string) (*ExecutionHistory, bool, error) {
	var h ExecutionHistory
	if err := s.manager.GetJSON(ctx, s.key(runID), &h); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &h, true, nil
}

// Recent implements HistoryStore. 索引中已过期的运行会被跳过。
func (s *RedisHistoryStore) Recent(ctx context.Context, n int) ([]*ExecutionHistory, error) {
	ids, err := s.manager.IndexRecent(ctx, s.index(), n)
	if err != nil {
		return nil, err
	}
	out := make([]*ExecutionHistory, 0, len(ids))
	for _, id := range ids {
		h, ok, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, cache.ErrClosed) {
				return nil, err
			}
			s.logger.Warn("skip unreadable history", zap.String("run_id", id), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, h)
		}
	}
	return out, nil
}
