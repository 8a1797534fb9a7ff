package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ClientKey 客户端注册键
type ClientKey struct {
	Server    string
	Transport TransportType
}

// String implements fmt.Stringer.
func (k ClientKey) String() string {
	return fmt.Sprintf("%s/%s", k.Server, k.Transport)
}

// 重连退避默认值
const (
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectInterval = time.Minute
)

// ClientFactory 构造（未连接的）客户端
type ClientFactory func(desc ServerDescriptor, transport TransportType, opts ClientOptions) (Client, error)

// ClientRegistry 按 (server, transport) 记忆已连接的客户端。
// 同一键的并发构造通过 singleflight 合并，只会发生一次 Connect。
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[ClientKey]Client
	group   singleflight.Group

	factory ClientFactory
	opts    ClientOptions
	logger  *zap.Logger

	retryMu  sync.Mutex
	retry    map[ClientKey]*retryState
	minRetry time.Duration
	maxRetry time.Duration
	now      func() time.Time
}

// retryState 某个键最近一次失败后的退避
type retryState struct {
	next  time.Time
	delay time.Duration
}

// NewClientRegistry 创建注册表；factory 为 nil 时使用 NewClient
func NewClientRegistry(factory ClientFactory, opts ClientOptions) *ClientRegistry {
	if factory == nil {
		factory = NewClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientRegistry{
		clients:  make(map[ClientKey]Client),
		factory:  factory,
		opts:     opts,
		logger:   logger.With(zap.String("component", "mcp_registry")),
		retry:    make(map[ClientKey]*retryState),
		minRetry: DefaultReconnectInterval,
		maxRetry: DefaultMaxReconnectInterval,
		now:      time.Now,
	}
}

// SetReconnectBackoff 设置 Ensure 的重连退避：首次失败后等待 minDelay，
// 之后每次失败翻倍，不超过 maxDelay。minDelay 为 0 时每次 Ensure 都会重试。
func (r *ClientRegistry) SetReconnectBackoff(minDelay, maxDelay time.Duration) {
	minDelay = max(minDelay, 0)
	maxDelay = max(maxDelay, minDelay)
	r.retryMu.Lock()
	r.minRetry, r.maxRetry = minDelay, maxDelay
	r.retryMu.Unlock()
}

// GetOrCreate 返回已连接的客户端，必要时构造并连接。
// 连接失败返回 nil，且不会缓存失败的客户端。调用方取消只让自己提前返回 nil，
// 不影响同一 flight 上的其他等待者。
func (r *ClientRegistry) GetOrCreate(ctx context.Context, desc ServerDescriptor, transport TransportType) Client {
	key := ClientKey{Server: desc.Name, Transport: transport}

	if c := r.lookup(key); c != nil {
		return c
	}

	// 连接与首个调用方的取消解耦，Connect 自身受调用超时约束
	connectCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key.String(), func() (any, error) {
		// 再查一次：前一个 flight 可能刚刚完成
		if c := r.lookup(key); c != nil {
			return c, nil
		}

		c, err := r.factory(desc, transport, r.opts)
		if err != nil {
			r.logger.Warn("client construction failed", zap.Stringer("key", key), zap.Error(err))
			return nil, nil
		}
		if !c.Connect(connectCtx) {
			r.logger.Warn("client connect failed", zap.Stringer("key", key))
			return nil, nil
		}

		r.mu.Lock()
		r.clients[key] = c
		r.mu.Unlock()
		r.logger.Info("client registered", zap.Stringer("key", key))
		return c, nil
	})

	select {
	case res := <-ch:
		c, _ := res.Val.(Client)
		return c
	case <-ctx.Done():
		return nil
	}
}

// Ensure 返回可用的客户端。已注册但连接已断开的客户端先被移除再重建；
// 连接失败的键在退避期内直接返回 nil，不发起新的连接。
func (r *ClientRegistry) Ensure(ctx context.Context, desc ServerDescriptor, transport TransportType) Client {
	key := ClientKey{Server: desc.Name, Transport: transport}

	if c := r.lookup(key); c != nil {
		if c.IsConnected() {
			return c
		}
		r.removeStale(ctx, key, c)
	}
	if !r.retryDue(key) {
		return nil
	}

	c := r.GetOrCreate(ctx, desc, transport)
	if ctx.Err() == nil {
		r.noteAttempt(key, c != nil)
	}
	return c
}

// removeStale 仅当注册的仍是 stale 时移除，避免误删并发重建出的新客户端
func (r *ClientRegistry) removeStale(ctx context.Context, key ClientKey, stale Client) {
	r.mu.Lock()
	if r.clients[key] != stale {
		r.mu.Unlock()
		return
	}
	delete(r.clients, key)
	r.mu.Unlock()

	if err := stale.Disconnect(ctx); err != nil {
		r.logger.Debug("disconnect stale client failed", zap.Stringer("key", key), zap.Error(err))
	}
	r.logger.Info("stale client removed", zap.Stringer("key", key))
}

func (r *ClientRegistry) retryDue(key ClientKey) bool {
	r.retryMu.Lock()
	defer r.retryMu.Unlock()
	st, ok := r.retry[key]
	return !ok || !r.now().Before(st.next)
}

func (r *ClientRegistry) noteAttempt(key ClientKey, ok bool) {
	r.retryMu.Lock()
	defer r.retryMu.Unlock()
	if ok {
		delete(r.retry, key)
		return
	}
	st, exists := r.retry[key]
	if !exists {
		st = &retryState{delay: r.minRetry}
		r.retry[key] = st
	} else {
		st.delay = min(st.delay*2, r.maxRetry)
	}
	st.next = r.now().Add(st.delay)
	r.logger.Debug("reconnect scheduled", zap.Stringer("key", key), zap.Duration("after", st.delay))
}

func (r *ClientRegistry) lookup(key ClientKey) Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[key]
}

// Get 返回已注册的客户端
func (r *ClientRegistry) Get(key ClientKey) (Client, bool) {
	c := r.lookup(key)
	return c, c != nil
}

// Remove 断开并遗忘客户端，下一次 GetOrCreate 会重新连接
func (r *ClientRegistry) Remove(ctx context.Context, key ClientKey) bool {
	r.mu.Lock()
	c, ok := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := c.Disconnect(ctx); err != nil {
		r.logger.Warn("disconnect failed", zap.Stringer("key", key), zap.Error(err))
	}
	r.logger.Info("client removed", zap.Stringer("key", key))
	return true
}

// Clients 返回已连接客户端，按 server 名称排序
func (r *ClientRegistry) Clients() []Client {
	r.mu.RLock()
	keys := make([]ClientKey, 0, len(r.clients))
	for k, c := range r.clients {
		if c.IsConnected() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Server != keys[j].Server {
			return keys[i].Server < keys[j].Server
		}
		return keys[i].Transport < keys[j].Transport
	})
	out := make([]Client, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.clients[k])
	}
	r.mu.RUnlock()
	return out
}

// Len 已注册客户端数量
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close 断开全部客户端
func (r *ClientRegistry) Close(ctx context.Context) error {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[ClientKey]Client)
	r.mu.Unlock()

	var errs []error
	for key, c := range clients {
		if err := c.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// PreferredTransport 选择描述中的首选传输：优先 http
func PreferredTransport(desc ServerDescriptor) TransportType {
	if _, ok := desc.Endpoint(TransportHTTP); ok {
		return TransportHTTP
	}
	return TransportWebSocket
}
