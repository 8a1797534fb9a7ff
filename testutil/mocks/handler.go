// MockHandler 的 agent 处理器测试模拟实现。
package mocks

import (
	"context"
	"sync"

	"github.com/Andrew821667/ai-seo-architects/agent"
)

// MockHandler 是 agent.Handler 的模拟实现
type MockHandler struct {
	mu sync.RWMutex

	result agent.Result
	err    error
	fn     func(ctx context.Context, task agent.Task) (agent.Result, error)

	calls []agent.Task
}

// NewMockHandler 创建返回 {"success": true} 的 MockHandler
func NewMockHandler() *MockHandler {
	return &MockHandler{result: agent.Result{agent.KeySuccess: true}}
}

// WithResult 设置固定结果
func (m *MockHandler) WithResult(r agent.Result) *MockHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
	return m
}

// WithScore 返回带 score 的成功结果
func (m *MockHandler) WithScore(score float64) *MockHandler {
	return m.WithResult(agent.Result{agent.KeySuccess: true, agent.KeyScore: score})
}

// WithError 设置返回错误
func (m *MockHandler) WithError(err error) *MockHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFunc 设置自定义处理函数，优先于固定结果
func (m *MockHandler) WithFunc(fn func(ctx context.Context, task agent.Task) (agent.Result, error)) *MockHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Process 实现 agent.Handler
func (m *MockHandler) Process(ctx context.Context, task agent.Task) (agent.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, task)
	fn, result, err := m.fn, m.result, m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, task)
	}
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

// Calls 返回收到的任务
func (m *MockHandler) Calls() []agent.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]agent.Task, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockHandler) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}
