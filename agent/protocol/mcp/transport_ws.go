package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WSState represents the connection state of a WebSocket transport.
type WSState string

const (
	WSStateDisconnected WSState = "disconnected"
	WSStateConnecting   WSState = "connecting"
	WSStateConnected    WSState = "connected"
	WSStateClosed       WSState = "closed"
)

// WSTransportConfig configures the WebSocket transport behavior.
type WSTransportConfig struct {
	HandshakeTimeout time.Duration // Max wait for the handshake acknowledgement (default 10s)
	Subprotocols     []string      // WebSocket subprotocols (default ["mcp"])
	ReadLimit        int64         // Max message size in bytes (default 16MiB)
}

// DefaultWSTransportConfig returns a WSTransportConfig with sensible defaults.
func DefaultWSTransportConfig() WSTransportConfig {
	return WSTransportConfig{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"mcp"},
		ReadLimit:        maxReplyBytes,
	}
}

// WebSocketTransport is a request_id-correlated message channel over a single
// WebSocket connection. A background read loop dispatches replies to waiting
// callers; losing the connection fails every pending call.
type WebSocketTransport struct {
	url     string
	headers http.Header
	config  WSTransportConfig
	logger  *zap.Logger

	writeMu sync.Mutex

	mu            sync.Mutex
	conn          *websocket.Conn
	state         WSState
	closed        bool
	onStateChange func(state WSState)
	pending       map[string]chan *wsMessage
	cancelRead    context.CancelFunc
	done          chan struct{}
}

// NewWebSocketTransport creates a WebSocket transport with default configuration.
func NewWebSocketTransport(url string, headers http.Header, logger *zap.Logger) *WebSocketTransport {
	return NewWebSocketTransportWithConfig(url, headers, DefaultWSTransportConfig(), logger)
}

// NewWebSocketTransportWithConfig creates a WebSocket transport with custom configuration.
func NewWebSocketTransportWithConfig(url string, headers http.Header, config WSTransportConfig, logger *zap.Logger) *WebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Apply defaults for zero-value fields so callers can set only what they care about.
	def := DefaultWSTransportConfig()
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = def.HandshakeTimeout
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = def.ReadLimit
	}
	return &WebSocketTransport{
		url:     url,
		headers: headers,
		config:  config,
		logger:  logger.With(zap.String("component", "mcp_ws_transport")),
		state:   WSStateDisconnected,
		pending: make(map[string]chan *wsMessage),
		done:    make(chan struct{}),
	}
}

// OnStateChange registers a callback invoked whenever the connection state changes.
func (t *WebSocketTransport) OnStateChange(fn func(WSState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

// setState updates the internal state and fires the callback (if registered).
// Caller must NOT hold t.mu.
func (t *WebSocketTransport) setState(s WSState) {
	t.mu.Lock()
	t.state = s
	fn := t.onStateChange
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// State returns the current connection state.
func (t *WebSocketTransport) State() WSState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect dials, sends the handshake and waits for {"status":"connected"}
// before starting the read loop.
func (t *WebSocketTransport) Connect(ctx context.Context, hello wsMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("websocket: transport is closed")
	}
	t.mu.Unlock()

	t.setState(WSStateConnecting)

	hsCtx, cancel := context.WithTimeout(ctx, t.config.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(hsCtx, t.url, &websocket.DialOptions{
		HTTPHeader:   t.headers,
		Subprotocols: t.config.Subprotocols,
	})
	if err != nil {
		t.setState(WSStateDisconnected)
		return fmt.Errorf("websocket connect: %w", err)
	}
	conn.SetReadLimit(t.config.ReadLimit)

	if err := writeJSON(hsCtx, conn, hello); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "handshake write failed")
		t.setState(WSStateDisconnected)
		return fmt.Errorf("websocket handshake: %w", err)
	}

	_, data, err := conn.Read(hsCtx)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "handshake read failed")
		t.setState(WSStateDisconnected)
		return fmt.Errorf("websocket handshake ack: %w", err)
	}
	var ack wsMessage
	if err := json.Unmarshal(data, &ack); err != nil || ack.Status != "connected" {
		_ = conn.Close(websocket.StatusPolicyViolation, "handshake rejected")
		t.setState(WSStateDisconnected)
		if err != nil {
			return fmt.Errorf("websocket handshake ack: %w", err)
		}
		return fmt.Errorf("websocket handshake rejected: status=%q %s", ack.Status, ack.ErrorMessage)
	}

	readCtx, cancelRead := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn = conn
	t.cancelRead = cancelRead
	t.mu.Unlock()

	t.setState(WSStateConnected)
	go t.readLoop(readCtx, conn)
	return nil
}

// Call sends msg and waits for the reply carrying the same request_id.
func (t *WebSocketTransport) Call(ctx context.Context, msg wsMessage) (*wsMessage, error) {
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}

	ch := make(chan *wsMessage, 1)
	t.mu.Lock()
	conn := t.conn
	if t.closed || conn == nil || t.state != WSStateConnected {
		t.mu.Unlock()
		return nil, fmt.Errorf("websocket: not connected")
	}
	t.pending[msg.RequestID] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, msg.RequestID)
		t.mu.Unlock()
	}()

	t.writeMu.Lock()
	err := writeJSON(ctx, conn, msg)
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("websocket send: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("websocket: connection lost")
		}
		return reply, nil
	}
}

// Ping sends {"type":"ping"} and waits for the pong.
func (t *WebSocketTransport) Ping(ctx context.Context) error {
	reply, err := t.Call(ctx, wsMessage{Type: wsTypePing})
	if err != nil {
		return err
	}
	if reply.Type != wsTypePong {
		return fmt.Errorf("websocket: expected pong, got %q", reply.Type)
	}
	return nil
}

// readLoop dispatches incoming messages to pending callers until the
// connection fails or the transport is closed.
func (t *WebSocketTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.failPending()
			select {
			case <-t.done:
			default:
				t.logger.Warn("read loop stopped", zap.Error(err))
				t.setState(WSStateDisconnected)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warn("dropping undecodable message", zap.Error(err))
			continue
		}
		if msg.RequestID == "" {
			t.logger.Debug("dropping uncorrelated message", zap.String("type", msg.Type))
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[msg.RequestID]
		if ok {
			delete(t.pending, msg.RequestID)
			ch <- &msg
		}
		t.mu.Unlock()
		if !ok {
			t.logger.Debug("reply for unknown request", zap.String("request_id", msg.RequestID))
		}
	}
}

// failPending closes every pending reply channel.
func (t *WebSocketTransport) failPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

// Close shuts down the read loop and closes the underlying connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	conn := t.conn
	cancel := t.cancelRead
	t.mu.Unlock()

	t.setState(WSStateClosed)

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "closing")
	}
	if cancel != nil {
		cancel()
	}
	return err
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

// =============================================================================
// WSClient
// =============================================================================

// WSClient 基于 WebSocket 的协议客户端
type WSClient struct {
	*clientCore

	config WSTransportConfig
	base   *zap.Logger

	mu sync.Mutex
	tr *WebSocketTransport
}

// NewWSClient 创建 WebSocket 协议客户端（未连接）
func NewWSClient(desc ServerDescriptor, opts ClientOptions) *WSClient {
	return NewWSClientWithConfig(desc, DefaultWSTransportConfig(), opts)
}

// NewWSClientWithConfig 使用自定义传输配置创建客户端
func NewWSClientWithConfig(desc ServerDescriptor, config WSTransportConfig, opts ClientOptions) *WSClient {
	base := opts.Logger
	if base == nil {
		base = zap.NewNop()
	}
	return &WSClient{
		clientCore: newClientCore(desc, TransportWebSocket, opts),
		config:     config,
		base:       base,
	}
}

// Connect 拨号并完成握手
func (c *WSClient) Connect(ctx context.Context) bool {
	if c.IsConnected() {
		return true
	}
	url, ok := c.desc.Endpoint(TransportWebSocket)
	if !ok {
		c.logger.Warn("no websocket endpoint configured")
		c.metrics.RecordProtocolConnect(c.desc.Name, string(TransportWebSocket), false)
		return false
	}
	headers, err := BuildHeaders(c.desc, c.identity)
	if err != nil {
		c.logger.Warn("build headers failed", zap.Error(err))
		c.metrics.RecordProtocolConnect(c.desc.Name, string(TransportWebSocket), false)
		return false
	}

	tr := NewWebSocketTransportWithConfig(url, headers, c.config, c.base.With(zap.String("server", c.desc.Name)))
	tr.OnStateChange(func(s WSState) {
		if s != WSStateConnected {
			c.connected.Store(false)
		}
	})

	hello := wsMessage{
		Type:         wsTypeHandshake,
		AgentID:      c.identity.AgentID,
		Capabilities: c.identity.Capabilities,
		Version:      ProtocolVersion,
	}
	if err := tr.Connect(ctx, hello); err != nil {
		c.logger.Warn("websocket connect failed", zap.Error(err))
		c.metrics.RecordProtocolConnect(c.desc.Name, string(TransportWebSocket), false)
		return false
	}

	c.mu.Lock()
	old := c.tr
	c.tr = tr
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	c.connected.Store(true)
	c.metrics.RecordProtocolConnect(c.desc.Name, string(TransportWebSocket), true)
	c.logger.Info("connected to resource server")
	return true
}

// Execute 发送查询消息并等待同 request_id 的响应
func (c *WSClient) Execute(ctx context.Context, q *Query) (*Response, error) {
	return c.execute(ctx, q, c.roundTrip)
}

func (c *WSClient) roundTrip(ctx context.Context, q *Query) *Response {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return NewErrorResponse(q.RequestID, CodeTransport, "websocket transport closed")
	}

	reply, err := tr.Call(ctx, newWSQuery(q, c.identity))
	if err != nil {
		return transportFailure(ctx, q.RequestID, err)
	}
	if reply.Type != wsTypeResponse {
		return NewErrorResponse(q.RequestID, CodeDecode, "unexpected message type "+reply.Type)
	}
	return reply.toResponse(q.RequestID, c.desc.Name)
}

// HealthCheck ping/pong 探测
func (c *WSClient) HealthCheck(ctx context.Context) bool {
	if !c.IsConnected() {
		return false
	}
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.desc.CallTimeout())
	defer cancel()
	if err := tr.Ping(ctx); err != nil {
		c.logger.Debug("ping failed", zap.Error(err))
		return false
	}
	return true
}

// Disconnect 关闭连接
func (c *WSClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()
	c.connected.Store(false)
	if tr == nil {
		return nil
	}
	c.logger.Info("disconnected from resource server")
	return tr.Close()
}
