// MockClient 的协议客户端测试模拟实现。
//
// 支持按资源类型配置数据、partial 响应、错误响应与连接失败。
package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
)

// --- MockClient 结构 ---

type mockReply struct {
	data       any
	partial    bool
	errCode    string
	errMessage string
}

// MockClient 是 mcp.Client 的模拟实现
type MockClient struct {
	mu sync.RWMutex

	desc      mcp.ServerDescriptor
	transport mcp.TransportType

	replies    map[mcp.ResourceType]mockReply
	confidence *float64
	delay      time.Duration

	connectFails bool
	healthy      bool
	connected    atomic.Bool

	queries []*mcp.Query
}

// NewMockClient 创建新的 MockClient，默认健康、可连接、对所有资源返回空数据
func NewMockClient(desc mcp.ServerDescriptor, transport mcp.TransportType) *MockClient {
	return &MockClient{
		desc:      desc.Clone(),
		transport: transport,
		replies:   make(map[mcp.ResourceType]mockReply),
		healthy:   true,
	}
}

// --- Builder 方法 ---

// WithData 设置资源类型的成功响应数据
func (m *MockClient) WithData(rt mcp.ResourceType, data any) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[rt] = mockReply{data: data}
	return m
}

// WithPartial 设置 partial 响应
func (m *MockClient) WithPartial(rt mcp.ResourceType, data any, code, message string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[rt] = mockReply{data: data, partial: true, errCode: code, errMessage: message}
	return m
}

// WithError 设置资源类型的错误响应
func (m *MockClient) WithError(rt mcp.ResourceType, code, message string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[rt] = mockReply{errCode: code, errMessage: message}
	return m
}

// WithConfidence 在 metadata 中返回置信度
func (m *MockClient) WithConfidence(c float64) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidence = &c
	return m
}

// WithDelay 设置响应延迟，遵守 ctx 取消
func (m *MockClient) WithDelay(d time.Duration) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithConnectFailure Connect 返回 false
func (m *MockClient) WithConnectFailure() *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectFails = true
	return m
}

// SetHealthy 设置 HealthCheck 结果
func (m *MockClient) SetHealthy(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = ok
}

// --- mcp.Client 实现 ---

// Connect 建立连接
func (m *MockClient) Connect(context.Context) bool {
	m.mu.RLock()
	fails := m.connectFails
	m.mu.RUnlock()
	if fails {
		return false
	}
	m.connected.Store(true)
	return true
}

// Execute 返回预先配置的响应
func (m *MockClient) Execute(ctx context.Context, q *mcp.Query) (*mcp.Response, error) {
	if !m.connected.Load() {
		return nil, mcp.ErrNotConnected
	}

	m.mu.Lock()
	m.queries = append(m.queries, q)
	reply, ok := m.replies[q.ResourceType]
	delay := m.delay
	confidence := m.confidence
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return mcp.NewErrorResponse(q.RequestID, mcp.CodeTimeout, "call exceeded deadline"), nil
		}
	}

	var resp *mcp.Response
	switch {
	case !ok:
		resp = mcp.NewSuccessResponse(q.RequestID, map[string]any{}, m.desc.Name)
	case reply.errCode != "" && !reply.partial:
		return mcp.NewErrorResponse(q.RequestID, reply.errCode, reply.errMessage), nil
	case reply.partial:
		resp = mcp.NewPartialResponse(q.RequestID, reply.data, m.desc.Name, reply.errCode, reply.errMessage)
	default:
		resp = mcp.NewSuccessResponse(q.RequestID, reply.data, m.desc.Name)
	}
	if confidence != nil {
		resp.Metadata["confidence"] = *confidence
	}
	resp.Cost = m.desc.CostPerCall
	return resp, nil
}

// HealthCheck 探测
func (m *MockClient) HealthCheck(context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// Disconnect 断开
func (m *MockClient) Disconnect(context.Context) error {
	m.connected.Store(false)
	return nil
}

// Descriptor 返回描述副本
func (m *MockClient) Descriptor() mcp.ServerDescriptor { return m.desc.Clone() }

// Transport 传输方式
func (m *MockClient) Transport() mcp.TransportType { return m.transport }

// IsConnected 是否已连接
func (m *MockClient) IsConnected() bool { return m.connected.Load() }

// --- 调用记录 ---

// Queries 返回收到的查询
func (m *MockClient) Queries() []*mcp.Query {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*mcp.Query, len(m.queries))
	copy(out, m.queries)
	return out
}

// CallCount 返回调用次数
func (m *MockClient) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queries)
}

// --- MockFactory ---

// MockFactory 按服务器名称分发 MockClient，New 可作为 mcp.ClientFactory
type MockFactory struct {
	mu      sync.Mutex
	clients map[string]*MockClient
	created int
}

// NewMockFactory 创建工厂
func NewMockFactory() *MockFactory {
	return &MockFactory{clients: make(map[string]*MockClient)}
}

// Client 返回（必要时创建）指定服务器的 MockClient，用于预先配置
func (f *MockFactory) Client(name string) *MockClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[name]
	if !ok {
		c = NewMockClient(mcp.ServerDescriptor{Name: name}, mcp.TransportHTTP)
		f.clients[name] = c
	}
	return c
}

// New 实现 mcp.ClientFactory：沿用预配置的响应，描述与传输取自调用方
func (f *MockFactory) New(desc mcp.ServerDescriptor, transport mcp.TransportType, _ mcp.ClientOptions) (mcp.Client, error) {
	c := f.Client(desc.Name)

	f.mu.Lock()
	f.created++
	f.mu.Unlock()

	c.mu.Lock()
	c.desc = desc.Clone()
	c.transport = transport
	c.mu.Unlock()
	return c, nil
}

// Created 工厂被调用的次数
func (f *MockFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}
