package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Andrew821667/ai-seo-architects/internal/metrics"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// ServerRequest 资源服务器收到的一次请求
type ServerRequest struct {
	Method       Method
	ResourceType ResourceType
	ResourceID   string
	Parameters   map[string]any
	Filters      map[string]any
	Context      map[string]any
	Caller       CallerIdentity
}

// ServerReply 资源处理结果
type ServerReply struct {
	Data     any
	Metadata map[string]any
	Partial  bool
	CacheHit bool
}

// HandlerError 带传输状态码的处理错误
type HandlerError struct {
	Status  int
	Message string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// ResourceHandler 处理某一资源类型的请求
type ResourceHandler func(ctx context.Context, req ServerRequest) (ServerReply, error)

// ResourceServer 参考资源服务器，实现与客户端相同的 HTTP / WebSocket 线协议。
// 用于测试与 serve-mock 命令。
type ResourceServer struct {
	name string
	auth AuthDescriptor

	mu       sync.RWMutex
	handlers map[ResourceType]ResourceHandler
	failures map[ResourceType]*HandlerError
	delay    time.Duration
	healthy  bool

	requests    atomic.Int64
	handshakes  atomic.Int64
	lastHeaders atomic.Pointer[http.Header]

	metrics *metrics.Collector
	logger  *zap.Logger
}

// ServerOption 资源服务器选项
type ServerOption func(*ResourceServer)

// WithServerAuth 要求请求携带与描述一致的凭证
func WithServerAuth(auth AuthDescriptor) ServerOption {
	return func(s *ResourceServer) { s.auth = auth }
}

// WithServerLogger 设置日志
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *ResourceServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServerMetrics 设置指标收集器
func WithServerMetrics(m *metrics.Collector) ServerOption {
	return func(s *ResourceServer) { s.metrics = m }
}

// NewResourceServer 创建参考资源服务器
func NewResourceServer(name string, opts ...ServerOption) *ResourceServer {
	s := &ResourceServer{
		name:     name,
		handlers: make(map[ResourceType]ResourceHandler),
		failures: make(map[ResourceType]*HandlerError),
		healthy:  true,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "resource_server"), zap.String("server", name))
	return s
}

// Handle 注册资源处理函数
func (s *ResourceServer) Handle(rt ResourceType, h ResourceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[rt] = h
}

// FailWith 让某资源类型的请求以给定状态码失败；status=0 取消
func (s *ResourceServer) FailWith(rt ResourceType, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, rt)
		return
	}
	s.failures[rt] = &HandlerError{Status: status, Message: message}
}

// SetDelay 为每个请求注入延迟（模拟慢服务器）
func (s *ResourceServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetHealthy 控制 /health 结果
func (s *ResourceServer) SetHealthy(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = ok
}

// Requests 已处理的查询数
func (s *ResourceServer) Requests() int64 { return s.requests.Load() }

// Handshakes 已完成的 WebSocket 握手数
func (s *ResourceServer) Handshakes() int64 { return s.handshakes.Load() }

// LastHeaders 最近一次查询的请求头
func (s *ResourceServer) LastHeaders() http.Header {
	if h := s.lastHeaders.Load(); h != nil {
		return h.Clone()
	}
	return nil
}

// Handler 返回 HTTP 处理器：
//
//	POST /{version}/{method}  查询
//	GET  /health              健康检查
//	GET  /ws                  WebSocket
func (s *ResourceServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{version}/{method}", s.handleQuery)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func (s *ResourceServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ok := s.healthy
	s.mu.RUnlock()
	if !ok {
		writeReply(w, http.StatusServiceUnavailable, httpReplyBody{Error: "unhealthy"})
		return
	}
	writeReply(w, http.StatusOK, httpReplyBody{Data: map[string]any{"status": "ok", "server": s.name}})
}

func (s *ResourceServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		s.metrics.RecordHTTPRequest(r.Method, "/"+ProtocolVersion+"/method", status, time.Since(start))
	}()

	h := r.Header.Clone()
	s.lastHeaders.Store(&h)

	if err := s.checkAuth(r.Header); err != nil {
		status = http.StatusUnauthorized
		writeReply(w, status, httpReplyBody{Error: err.Error()})
		return
	}
	if r.PathValue("version") != ProtocolVersion {
		status = http.StatusNotFound
		writeReply(w, status, httpReplyBody{Error: "unsupported protocol version"})
		return
	}
	method := Method(strings.ToUpper(r.PathValue("method")))
	if !method.Valid() {
		status = http.StatusBadRequest
		writeReply(w, status, httpReplyBody{Error: "unknown method " + string(method)})
		return
	}

	var body httpRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReplyBytes)).Decode(&body); err != nil {
		status = http.StatusBadRequest
		writeReply(w, status, httpReplyBody{Error: "invalid body: " + err.Error()})
		return
	}

	reply, err := s.dispatch(r.Context(), ServerRequest{
		Method:       method,
		ResourceType: body.ResourceType,
		ResourceID:   body.ResourceID,
		Parameters:   body.Parameters,
		Filters:      body.Filters,
		Context:      body.Context,
		Caller:       body.CallerIdentity,
	})
	if err != nil {
		status = statusOf(err)
		writeReply(w, status, httpReplyBody{Error: messageOf(err)})
		return
	}

	out := httpReplyBody{Data: reply.Data, Metadata: reply.Metadata, Source: s.name, CacheHit: reply.CacheHit}
	if reply.Partial {
		out.Status = StatusPartial
	}
	writeReply(w, status, out)
}

func (s *ResourceServer) handleWS(w http.ResponseWriter, r *http.Request) {
	if err := s.checkAuth(r.Header); err != nil {
		writeReply(w, http.StatusUnauthorized, httpReplyBody{Error: err.Error()})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"mcp"}})
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(maxReplyBytes)

	ctx := r.Context()
	h := r.Header.Clone()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var hello wsMessage
	if err := json.Unmarshal(data, &hello); err != nil || hello.Type != wsTypeHandshake {
		_ = writeJSON(ctx, conn, wsMessage{Type: wsTypeHandshake, Status: "rejected", ErrorMessage: "handshake expected"})
		return
	}
	if err := writeJSON(ctx, conn, wsMessage{Type: wsTypeHandshake, Status: "connected", Version: ProtocolVersion}); err != nil {
		return
	}
	s.handshakes.Add(1)
	s.logger.Debug("websocket handshake", zap.String("agent_id", hello.AgentID))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case wsTypePing:
			if err := writeJSON(ctx, conn, wsMessage{Type: wsTypePong, RequestID: msg.RequestID}); err != nil {
				return
			}
		case wsTypeQuery:
			s.lastHeaders.Store(&h)
			req := ServerRequest{
				Method:       msg.Method,
				ResourceType: msg.ResourceType,
				ResourceID:   msg.ResourceID,
				Parameters:   msg.Parameters,
				Filters:      msg.Filters,
				Context:      msg.Context,
			}
			if msg.CallerIdentity != nil {
				req.Caller = *msg.CallerIdentity
			}
			out := wsMessage{Type: wsTypeResponse, RequestID: msg.RequestID, Source: s.name}
			reply, err := s.dispatch(ctx, req)
			switch {
			case err != nil:
				out.Status = string(StatusError)
				out.ErrorCode = strconv.Itoa(statusOf(err))
				out.ErrorMessage = messageOf(err)
			case reply.Partial:
				out.Status = string(StatusPartial)
			default:
				out.Status = string(StatusSuccess)
			}
			if err == nil {
				out.Data = reply.Data
				out.Metadata = reply.Metadata
				out.CacheHit = reply.CacheHit
			}
			if err := writeJSON(ctx, conn, out); err != nil {
				return
			}
		}
	}
}

// dispatch 执行注入的失败、延迟与资源处理函数
func (s *ResourceServer) dispatch(ctx context.Context, req ServerRequest) (ServerReply, error) {
	s.requests.Add(1)

	s.mu.RLock()
	h, ok := s.handlers[req.ResourceType]
	failure := s.failures[req.ResourceType]
	delay := s.delay
	s.mu.RUnlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ServerReply{}, &HandlerError{Status: http.StatusGatewayTimeout, Message: "request cancelled"}
		case <-time.After(delay):
		}
	}
	if failure != nil {
		return ServerReply{}, failure
	}
	if !ok {
		return ServerReply{}, &HandlerError{Status: http.StatusNotFound, Message: "unsupported resource type " + string(req.ResourceType)}
	}
	return h(ctx, req)
}

// checkAuth 校验请求凭证
func (s *ResourceServer) checkAuth(h http.Header) error {
	switch s.auth.Strategy {
	case "", AuthNone:
		return nil
	case AuthBearer:
		if !secureEqual(h.Get("Authorization"), "Bearer "+s.auth.Secret) {
			return errors.New("invalid bearer token")
		}
	case AuthAPIKey:
		header := s.auth.Header
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		if !secureEqual(h.Get(header), s.auth.Secret) {
			return errors.New("invalid api key")
		}
	case AuthJWT:
		raw, ok := strings.CutPrefix(h.Get("Authorization"), "Bearer ")
		if !ok {
			return errors.New("missing bearer token")
		}
		if _, err := VerifyJWT(raw, s.auth.Secret, s.name); err != nil {
			return fmt.Errorf("invalid token: %w", err)
		}
	default:
		return fmt.Errorf("unsupported auth strategy %q", s.auth.Strategy)
	}
	return nil
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func statusOf(err error) int {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Status
	}
	return http.StatusInternalServerError
}

func messageOf(err error) string {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Message
	}
	return err.Error()
}

func writeReply(w http.ResponseWriter, status int, body httpReplyBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// SampleHandler 返回确定性的示例数据，serve-mock 使用
func SampleHandler(rt ResourceType) ResourceHandler {
	return func(_ context.Context, req ServerRequest) (ServerReply, error) {
		return ServerReply{
			Data: map[string]any{
				"resource_type": string(rt),
				"resource_id":   req.ResourceID,
				"parameters":    req.Parameters,
				"caller":        req.Caller.AgentID,
			},
			Metadata: map[string]any{"confidence": 0.9},
		}, nil
	}
}
