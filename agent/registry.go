package agent

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry agent 名称到 Handler 的注册表
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewRegistry 创建空注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With(zap.String("component", "agent_registry")),
	}
}

// Register 注册；同名覆盖并记录日志
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	_, existed := r.handlers[name]
	r.handlers[name] = h
	r.mu.Unlock()

	if existed {
		r.logger.Warn("agent handler replaced", zap.String("agent", name))
		return
	}
	r.logger.Info("agent registered", zap.String("agent", name))
}

// Get 查找 handler
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Unregister 移除，返回是否存在
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.handlers[name]
	delete(r.handlers, name)
	r.mu.Unlock()
	if ok {
		r.logger.Info("agent unregistered", zap.String("agent", name))
	}
	return ok
}

// Names 已注册名称（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len 已注册数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
