package mcp

import (
	"context"
	"errors"
	"maps"
	"sync/atomic"
	"time"

	"github.com/Andrew821667/ai-seo-architects/internal/ctxkeys"
	"github.com/Andrew821667/ai-seo-architects/internal/metrics"
	"github.com/Andrew821667/ai-seo-architects/internal/tlsutil"
	"github.com/Andrew821667/ai-seo-architects/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotConnected Execute 在 Connect 成功之前被调用
var ErrNotConnected = types.NewError(types.ErrNotConnected, "client is not connected")

// Client 协议客户端，HTTP 与 WebSocket 共享同一生命周期契约
type Client interface {
	// Connect 建立连接，失败返回 false 而不是 error
	Connect(ctx context.Context) bool
	// Execute 执行查询；远端失败编码在 Response 中，仅未连接时返回 error
	Execute(ctx context.Context, q *Query) (*Response, error)
	// HealthCheck 探测服务器存活
	HealthCheck(ctx context.Context) bool
	// Disconnect 释放连接
	Disconnect(ctx context.Context) error

	Descriptor() ServerDescriptor
	Transport() TransportType
	IsConnected() bool
}

// ClientOptions 客户端公共选项
type ClientOptions struct {
	Identity CallerIdentity
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Pool     tlsutil.PoolOptions
}

// roundTripFunc 传输相关的一次请求，调用方已处理超时与限流
type roundTripFunc func(ctx context.Context, q *Query) *Response

// clientCore 两种传输共享的执行逻辑：连接状态、限流、超时、计时与成本
type clientCore struct {
	desc      ServerDescriptor
	transport TransportType
	identity  CallerIdentity
	limiter   *rate.Limiter
	metrics   *metrics.Collector
	logger    *zap.Logger
	connected atomic.Bool
}

func newClientCore(desc ServerDescriptor, transport TransportType, opts ClientOptions) *clientCore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &clientCore{
		desc:      desc.Clone(),
		transport: transport,
		identity:  opts.Identity,
		metrics:   opts.Metrics,
		logger: logger.With(
			zap.String("component", "mcp_client"),
			zap.String("server", desc.Name),
			zap.String("transport", string(transport)),
		),
	}
	if perMinute := desc.RateLimit(); perMinute > 0 {
		burst := max(1, perMinute/60)
		c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
	}
	return c
}

// Descriptor 返回描述副本
func (c *clientCore) Descriptor() ServerDescriptor { return c.desc.Clone() }

// Transport 返回传输类型
func (c *clientCore) Transport() TransportType { return c.transport }

// IsConnected 是否已连接
func (c *clientCore) IsConnected() bool { return c.connected.Load() }

// execute 包装一次调用：超时、限流、计时、成本、指标
func (c *clientCore) execute(ctx context.Context, q *Query, rt roundTripFunc) (*Response, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	q = correlate(ctx, q)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.desc.CallTimeout())
	defer cancel()

	var resp *Response
	if err := q.Validate(); err != nil {
		resp = NewErrorResponse(q.RequestID, CodeDecode, "invalid query: "+err.Error())
	} else if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			resp = NewErrorResponse(q.RequestID, CodeRateLimited, "rate limit wait: "+err.Error())
		}
	}
	if resp == nil {
		resp = rt(ctx, q)
	}

	// 响应必须与查询关联
	resp.RequestID = q.RequestID
	if resp.DataSource == "" {
		resp.DataSource = c.desc.Name
	}
	if resp.Status == StatusError {
		resp.Data = nil
	}
	elapsed := time.Since(start)
	resp.ProcessingTimeMS = float64(elapsed.Microseconds()) / 1000.0
	if resp.IsSuccess() {
		resp.Cost = c.desc.CostPerCall
		c.metrics.RecordExternalCost(c.desc.Name, resp.Cost)
	}

	c.metrics.RecordProtocolCall(c.desc.Name, string(c.transport), string(resp.Status), elapsed)
	if !resp.IsSuccess() {
		c.logger.Debug("resource server call failed",
			zap.String("request_id", q.RequestID),
			zap.String("error_code", resp.ErrorCode),
			zap.String("error", resp.ErrorMessage))
	}
	return resp, nil
}

// correlate 把工作流 run_id / node 写入查询上下文，调用方已设置的值优先。
// 同一查询可能被并发发往多个服务器，写入前先复制。
func correlate(ctx context.Context, q *Query) *Query {
	add := map[string]string{}
	if id, ok := ctxkeys.RunID(ctx); ok {
		add["run_id"] = id
	}
	if node, ok := ctxkeys.Node(ctx); ok {
		add["node"] = node
	}
	if len(add) == 0 {
		return q
	}

	out := *q
	out.Context = maps.Clone(q.Context)
	if out.Context == nil {
		out.Context = make(map[string]any, len(add))
	}
	for k, v := range add {
		if _, set := out.Context[k]; !set {
			out.Context[k] = v
		}
	}
	return &out
}

// transportFailure 将传输层错误映射为错误响应，区分超时
func transportFailure(ctx context.Context, requestID string, err error) *Response {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewErrorResponse(requestID, CodeTimeout, "call exceeded deadline")
	}
	return NewErrorResponse(requestID, CodeTransport, err.Error())
}

// NewClient 按传输类型构造客户端（未连接）
func NewClient(desc ServerDescriptor, transport TransportType, opts ClientOptions) (Client, error) {
	switch transport {
	case TransportHTTP:
		return NewHTTPClient(desc, opts), nil
	case TransportWebSocket:
		return NewWSClient(desc, opts), nil
	default:
		return nil, types.NewError(types.ErrInvalidConfig, "unknown transport "+string(transport)).
			WithServer(desc.Name)
	}
}
