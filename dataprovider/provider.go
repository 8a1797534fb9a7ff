package dataprovider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/config"
	"github.com/Andrew821667/ai-seo-architects/internal/metrics"
	"github.com/Andrew821667/ai-seo-architects/types"
)

// Provider 缓存 + 策略链 + 降级的数据访问入口
type Provider struct {
	cache      *TTLCache
	l2         *RedisL2
	strategies []Strategy
	recorder   Recorder
	stats      *accounting
	now        Clock
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// Option Provider 选项
type Option func(*providerOptions)

type providerOptions struct {
	l2       *RedisL2
	recorder Recorder
	clock    Clock
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// WithL2 启用 Redis 二级缓存
func WithL2(l2 *RedisL2) Option {
	return func(o *providerOptions) { o.l2 = l2 }
}

// WithRecorder 协议成功的结果回写到可写的兜底源
func WithRecorder(r Recorder) Option {
	return func(o *providerOptions) { o.recorder = r }
}

// WithClock 注入时钟（缓存有效期判断使用）
func WithClock(c Clock) Option {
	return func(o *providerOptions) { o.clock = c }
}

// WithMetrics 注入指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(o *providerOptions) { o.metrics = m }
}

// WithLogger 注入日志
func WithLogger(l *zap.Logger) Option {
	return func(o *providerOptions) { o.logger = l }
}

// New 创建 Provider；strategies 按顺序尝试
func New(cfg config.CacheConfig, strategies []Strategy, opts ...Option) *Provider {
	o := providerOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return &Provider{
		cache:      NewTTLCache(cfg.TTL, cfg.Capacity, cfg.EvictRatio, o.clock, o.metrics),
		l2:         o.l2,
		strategies: strategies,
		recorder:   o.recorder,
		stats:      newAccounting(cfg.LatencyWindow),
		now:        o.clock,
		metrics:    o.metrics,
		logger:     o.logger.With(zap.String("component", "data_provider")),
	}
}

// Get 获取资源数据。返回值永不为 nil；远端失败体现为兜底或降级结果
func (p *Provider) Get(ctx context.Context, rt mcp.ResourceType, resourceID string, params map[string]any) *Result {
	start := time.Now()
	req := Request{
		ResourceType: rt,
		ResourceID:   resourceID,
		Params:       params,
		Key:          CacheKey(rt, resourceID, params),
	}
	p.stats.update(func(s *Stats) { s.TotalRequests++ })

	res := p.resolve(ctx, req)

	elapsed := time.Since(start)
	res.LatencyMS = float64(elapsed.Microseconds()) / 1000.0
	if res.Timestamp.IsZero() {
		res.Timestamp = p.now()
	}
	status := "success"
	if res.Success {
		p.stats.observeLatency(res.LatencyMS)
	} else {
		status = "degraded"
	}
	p.metrics.RecordDataRequest(string(rt), res.Source, status, elapsed)
	return res
}

func (p *Provider) resolve(ctx context.Context, req Request) (res *Result) {
	defer func() {
		// 策略内部 panic 不能穿透到调用方
		if r := recover(); r != nil {
			p.logger.Error("strategy panicked", zap.Any("panic", r), zap.String("resource_type", string(req.ResourceType)))
			res = degraded(req, string(types.ErrInternal), fmt.Sprint(r))
			p.stats.update(func(s *Stats) { s.DegradedResults++ })
		}
	}()

	if cached, ok := p.cache.Get(req.Key); ok {
		return p.hit(cached, "l1")
	}
	if p.l2 != nil {
		// L2 中的结果保留原始时间戳，超过 TTL 的视为未命中
		if cached, ok := p.l2.Get(ctx, req.Key); ok && !cached.Timestamp.IsZero() && p.cache.Fresh(cached.Timestamp) {
			p.cache.SetAt(req.Key, cached, cached.Timestamp)
			return p.hit(cached, "l2")
		}
	}
	p.stats.update(func(s *Stats) { s.CacheMisses++ })
	p.metrics.RecordCacheMiss("l1")

	var last *Result
	for _, st := range p.strategies {
		r := st.Fetch(ctx, req)
		if r != nil && r.Success {
			r.Timestamp = p.now()
			p.store(ctx, req, r)
			p.stats.update(func(s *Stats) {
				s.Successes++
				s.TotalCost += r.Cost
				if st.Kind() == KindFallback {
					s.FallbackUses++
				}
			})
			if st.Kind() == KindFallback {
				p.logger.Info("served from fallback source",
					zap.String("resource_type", string(req.ResourceType)),
					zap.String("source", r.Source))
			}
			return r
		}

		if st.Kind() == KindRemote {
			p.stats.update(func(s *Stats) { s.Errors++ })
		}
		if r != nil {
			last = r
			p.logger.Debug("strategy failed",
				zap.String("strategy", st.Name()),
				zap.String("error_code", r.ErrorCode),
				zap.String("error", r.ErrorMessage))
		}
	}

	p.stats.update(func(s *Stats) { s.DegradedResults++ })
	code, msg := string(types.ErrDataUnavailable), "no strategy produced data"
	if last != nil {
		code, msg = last.ErrorCode, last.ErrorMessage
	}
	p.logger.Warn("returning degraded result",
		zap.String("resource_type", string(req.ResourceType)),
		zap.String("resource_id", req.ResourceID),
		zap.String("error_code", code))
	return degraded(req, code, msg)
}

func (p *Provider) hit(r *Result, layer string) *Result {
	r.CacheHit = true
	p.stats.update(func(s *Stats) {
		s.CacheHits++
		s.Successes++
	})
	p.metrics.RecordCacheHit(layer)
	return r
}

func (p *Provider) store(ctx context.Context, req Request, r *Result) {
	p.cache.Set(req.Key, r)
	if p.l2 != nil {
		p.l2.Set(ctx, req.Key, r)
	}
	if p.recorder != nil && !r.Fallback && !r.Partial {
		if err := p.recorder.Save(ctx, req.ResourceType, req.ResourceID, r.Data); err != nil {
			p.logger.Warn("snapshot write-back failed", zap.Error(err))
		}
	}
}

// Stats 返回计数快照
func (p *Provider) Stats() Stats {
	s := p.stats.snapshot()
	s.CacheSize = p.cache.Len()
	return s
}

// Cache 暴露 L1 缓存（测试与运维使用）
func (p *Provider) Cache() *TTLCache { return p.cache }

// Invalidate 删除某资源的缓存条目（L1）
func (p *Provider) Invalidate(rt mcp.ResourceType, resourceID string, params map[string]any) {
	p.cache.Delete(CacheKey(rt, resourceID, params))
}
