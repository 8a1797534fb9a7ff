package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/Andrew821667/ai-seo-architects/internal/tlsutil"
	"go.uber.org/zap"
)

// maxReplyBytes 单个响应体上限
const maxReplyBytes = 16 << 20

// HTTPClient 基于 HTTP 请求/响应的协议客户端
type HTTPClient struct {
	*clientCore

	mu         sync.Mutex
	httpClient *http.Client
	pool       tlsutil.PoolOptions
}

// NewHTTPClient 创建 HTTP 协议客户端（未连接）
func NewHTTPClient(desc ServerDescriptor, opts ClientOptions) *HTTPClient {
	return &HTTPClient{
		clientCore: newClientCore(desc, TransportHTTP, opts),
		pool:       opts.Pool,
	}
}

// Connect 打开连接池；配置了健康检查地址时先探测
func (c *HTTPClient) Connect(ctx context.Context) bool {
	if c.IsConnected() {
		return true
	}
	if _, ok := c.desc.Endpoint(TransportHTTP); !ok {
		c.logger.Warn("no http endpoint configured")
		c.metrics.RecordProtocolConnect(c.desc.Name, string(TransportHTTP), false)
		return false
	}

	c.mu.Lock()
	if c.httpClient == nil {
		c.httpClient = tlsutil.SecureHTTPClient(0, c.pool)
	}
	c.mu.Unlock()

	if c.desc.HealthCheckURL != "" {
		probeCtx, cancel := context.WithTimeout(ctx, c.desc.CallTimeout())
		ok := c.probe(probeCtx, c.desc.HealthCheckURL)
		cancel()
		if !ok {
			c.logger.Warn("health probe failed during connect", zap.String("url", c.desc.HealthCheckURL))
			c.metrics.RecordProtocolConnect(c.desc.Name, string(TransportHTTP), false)
			return false
		}
	}

	c.connected.Store(true)
	c.metrics.RecordProtocolConnect(c.desc.Name, string(TransportHTTP), true)
	c.logger.Info("connected to resource server")
	return true
}

// Execute 发送 POST {base}/{version}/{method}
func (c *HTTPClient) Execute(ctx context.Context, q *Query) (*Response, error) {
	return c.execute(ctx, q, c.roundTrip)
}

func (c *HTTPClient) roundTrip(ctx context.Context, q *Query) *Response {
	base, _ := c.desc.Endpoint(TransportHTTP)
	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), ProtocolVersion, strings.ToLower(string(q.Method)))

	body, err := json.Marshal(newHTTPRequestBody(q, c.identity))
	if err != nil {
		return NewErrorResponse(q.RequestID, CodeDecode, "encode request: "+err.Error())
	}

	headers, err := BuildHeaders(c.desc, c.identity)
	if err != nil {
		return NewErrorResponse(q.RequestID, CodeTransport, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return NewErrorResponse(q.RequestID, CodeTransport, err.Error())
	}
	req.Header = headers
	req.Header.Set("X-Request-ID", q.RequestID)

	c.mu.Lock()
	hc := c.httpClient
	c.mu.Unlock()
	if hc == nil {
		return NewErrorResponse(q.RequestID, CodeTransport, "http client closed")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return transportFailure(ctx, q.RequestID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return transportFailure(ctx, q.RequestID, err)
	}

	var reply httpReplyBody
	decodeErr := json.Unmarshal(raw, &reply)

	if resp.StatusCode != http.StatusOK {
		msg := reply.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return NewErrorResponse(q.RequestID, strconv.Itoa(resp.StatusCode), msg)
	}
	if decodeErr != nil {
		return NewErrorResponse(q.RequestID, CodeDecode, "decode reply: "+decodeErr.Error())
	}

	var out *Response
	if reply.Status == StatusPartial {
		out = NewPartialResponse(q.RequestID, reply.Data, reply.Source, "", reply.Error)
	} else {
		out = NewSuccessResponse(q.RequestID, reply.Data, reply.Source)
	}
	out.CacheHit = reply.CacheHit
	if reply.Metadata != nil {
		out.Metadata = reply.Metadata
	}
	return out
}

// HealthCheck 探测健康检查地址，未配置时探测 {base}/health
func (c *HTTPClient) HealthCheck(ctx context.Context) bool {
	if !c.IsConnected() {
		return false
	}
	url := c.desc.HealthCheckURL
	if url == "" {
		base, _ := c.desc.Endpoint(TransportHTTP)
		url = strings.TrimRight(base, "/") + "/health"
	}
	ctx, cancel := context.WithTimeout(ctx, c.desc.CallTimeout())
	defer cancel()
	return c.probe(ctx, url)
}

func (c *HTTPClient) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	if headers, err := BuildHeaders(c.desc, c.identity); err == nil {
		req.Header = headers
	}

	c.mu.Lock()
	hc := c.httpClient
	c.mu.Unlock()
	if hc == nil {
		return false
	}

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("health probe error", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Disconnect 关闭空闲连接
func (c *HTTPClient) Disconnect(ctx context.Context) error {
	if !c.connected.Swap(false) {
		return nil
	}
	c.mu.Lock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
	c.mu.Unlock()
	c.logger.Info("disconnected from resource server")
	return nil
}
