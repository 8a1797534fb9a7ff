package dataprovider

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/types"
)

// Request 一次获取请求
type Request struct {
	ResourceType mcp.ResourceType
	ResourceID   string
	Params       map[string]any
	Key          string
}

// StrategyKind 策略类别，决定统计口径
type StrategyKind int

const (
	// KindRemote 远端协议服务器
	KindRemote StrategyKind = iota
	// KindFallback 本地兜底源
	KindFallback
)

// Strategy 获取策略。返回 Success=false 的结果表示交给下一个策略
type Strategy interface {
	Name() string
	Kind() StrategyKind
	Fetch(ctx context.Context, req Request) *Result
}

// ClientSource 提供当前已连接的协议客户端（mcp.ClientRegistry 实现了它）
type ClientSource interface {
	Clients() []mcp.Client
}

// Reconnector 为配置的服务器重建断开的客户端（mcp.ClientRegistry 实现了它）
type Reconnector interface {
	Ensure(ctx context.Context, desc mcp.ServerDescriptor, transport mcp.TransportType) mcp.Client
}

// Target 期望保持连接的服务器及其传输
type Target struct {
	Descriptor mcp.ServerDescriptor
	Transport  mcp.TransportType
}

// =============================================================================
// ProtocolStrategy
// =============================================================================

// ProtocolStrategy 通过协议服务器获取数据。
// 优先选择声明支持该资源类型的客户端，否则退而使用任一已连接客户端。
type ProtocolStrategy struct {
	clients     ClientSource
	reconnector Reconnector
	targets     []Target
	race        bool
	fanout      *mcp.FanOut
	logger      *zap.Logger
}

// ProtocolOption ProtocolStrategy 选项
type ProtocolOption func(*ProtocolStrategy)

// WithRace 多个客户端支持同一资源时并发请求，取第一个成功响应
func WithRace(enabled bool) ProtocolOption {
	return func(p *ProtocolStrategy) { p.race = enabled }
}

// WithReconnect 每次获取前为没有可用客户端的目标尝试重连（受 Reconnector 的退避约束）
func WithReconnect(r Reconnector, targets ...Target) ProtocolOption {
	return func(p *ProtocolStrategy) {
		p.reconnector = r
		p.targets = targets
	}
}

// NewProtocolStrategy 创建协议策略
func NewProtocolStrategy(clients ClientSource, logger *zap.Logger, opts ...ProtocolOption) *ProtocolStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ProtocolStrategy{
		clients: clients,
		fanout:  mcp.NewFanOut(logger),
		logger:  logger.With(zap.String("component", "protocol_strategy")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Strategy.
func (p *ProtocolStrategy) Name() string { return "protocol" }

// Kind implements Strategy.
func (p *ProtocolStrategy) Kind() StrategyKind { return KindRemote }

// Select 返回本次请求使用的客户端列表；best-effort 时只有一个
func (p *ProtocolStrategy) Select(rt mcp.ResourceType) []mcp.Client {
	if p.clients == nil {
		return nil
	}
	var supporting, connected []mcp.Client
	for _, c := range p.clients.Clients() {
		if !c.IsConnected() {
			continue
		}
		connected = append(connected, c)
		if c.Descriptor().Supports(rt) {
			supporting = append(supporting, c)
		}
	}
	switch {
	case len(supporting) > 0 && p.race:
		return supporting
	case len(supporting) > 0:
		return supporting[:1]
	case len(connected) > 0:
		return connected[:1]
	}
	return nil
}

func (p *ProtocolStrategy) reconnect(ctx context.Context) {
	if p.reconnector == nil {
		return
	}
	for _, t := range p.targets {
		p.reconnector.Ensure(ctx, t.Descriptor, t.Transport)
	}
}

// Fetch implements Strategy.
func (p *ProtocolStrategy) Fetch(ctx context.Context, req Request) *Result {
	p.reconnect(ctx)
	clients := p.Select(req.ResourceType)
	if len(clients) == 0 {
		return failure(req, p.Name(), string(types.ErrDataUnavailable), "no protocol client available")
	}

	q := mcp.NewQuery(mcp.MethodGet, req.ResourceType).
		WithResourceID(req.ResourceID).
		WithParameters(req.Params)

	var resp *mcp.Response
	if len(clients) > 1 {
		resp = p.fanout.ExecuteFirst(ctx, clients, q)
	} else {
		var err error
		resp, err = clients[0].Execute(ctx, q)
		if err != nil {
			code := string(types.ErrTransport)
			if errors.Is(err, mcp.ErrNotConnected) {
				code = string(types.ErrNotConnected)
			}
			return failure(req, clients[0].Descriptor().Name, code, err.Error())
		}
	}

	if !resp.IsSuccess() {
		p.logger.Debug("protocol fetch failed",
			zap.String("resource_type", string(req.ResourceType)),
			zap.String("source", resp.DataSource),
			zap.String("error_code", resp.ErrorCode))
		return failure(req, resp.DataSource, resp.ErrorCode, resp.ErrorMessage)
	}

	confidence := ConfidenceProtocol
	if c, ok := resp.Confidence(); ok {
		confidence = c
	}
	partial := resp.Status == mcp.StatusPartial
	if partial {
		confidence *= partialConfidenceFactor
	}
	return &Result{
		Success:      true,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Data:         resp.Data,
		Source:       resp.DataSource,
		Confidence:   confidence,
		CacheHit:     resp.CacheHit,
		Partial:      partial,
		Cost:         resp.Cost,
	}
}

// =============================================================================
// FallbackStrategy
// =============================================================================

// FallbackStrategy 从 LocalSource 读取兜底数据
type FallbackStrategy struct {
	source LocalSource
}

// NewFallbackStrategy 创建兜底策略
func NewFallbackStrategy(source LocalSource) *FallbackStrategy {
	return &FallbackStrategy{source: source}
}

// Name implements Strategy.
func (f *FallbackStrategy) Name() string { return "fallback:" + f.source.Name() }

// Kind implements Strategy.
func (f *FallbackStrategy) Kind() StrategyKind { return KindFallback }

// Fetch implements Strategy.
func (f *FallbackStrategy) Fetch(ctx context.Context, req Request) *Result {
	data, err := f.source.Fetch(ctx, req.ResourceType, req.ResourceID, req.Params)
	if err != nil {
		code := string(types.GetErrorCode(err))
		if code == "" {
			code = string(types.ErrDataUnavailable)
		}
		return failure(req, f.source.Name(), code, err.Error())
	}
	return &Result{
		Success:      true,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Data:         data,
		Source:       f.source.Name(),
		Confidence:   f.source.Confidence(),
		Fallback:     true,
	}
}
