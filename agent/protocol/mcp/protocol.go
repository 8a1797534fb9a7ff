package mcp

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion 协议版本，作为 HTTP 路径前缀与握手版本号
const ProtocolVersion = "v1"

// DefaultCallTimeout 单次调用默认超时
const DefaultCallTimeout = 30 * time.Second

// Method 协议方法
type Method string

const (
	MethodGet         Method = "GET"
	MethodList        Method = "LIST"
	MethodSearch      Method = "SEARCH"
	MethodCreate      Method = "CREATE"
	MethodUpdate      Method = "UPDATE"
	MethodDelete      Method = "DELETE"
	MethodSubscribe   Method = "SUBSCRIBE"
	MethodUnsubscribe Method = "UNSUBSCRIBE"
)

var validMethods = map[Method]bool{
	MethodGet: true, MethodList: true, MethodSearch: true, MethodCreate: true,
	MethodUpdate: true, MethodDelete: true, MethodSubscribe: true, MethodUnsubscribe: true,
}

// Valid reports whether m is a known protocol method.
func (m Method) Valid() bool { return validMethods[m] }

// ResourceType 资源类型
type ResourceType string

const (
	ResourceSEOData         ResourceType = "seo_data"
	ResourceClientData      ResourceType = "client_data"
	ResourceCompetitiveData ResourceType = "competitive_data"
	ResourceAnalyticsData   ResourceType = "analytics_data"
	ResourceContentData     ResourceType = "content_data"
	ResourceTechnicalData   ResourceType = "technical_data"
	ResourceKeywordData     ResourceType = "keyword_data"
	ResourceBacklinkData    ResourceType = "backlink_data"
)

// ResourceTypes 返回全部已知资源类型
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceSEOData, ResourceClientData, ResourceCompetitiveData, ResourceAnalyticsData,
		ResourceContentData, ResourceTechnicalData, ResourceKeywordData, ResourceBacklinkData,
	}
}

// Valid reports whether rt is a known resource type.
func (rt ResourceType) Valid() bool {
	return slices.Contains(ResourceTypes(), rt)
}

// Status 响应状态
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPartial Status = "partial"
)

// Client-side error codes carried in Response.ErrorCode. HTTP failures use
// the numeric transport status instead.
const (
	CodeTimeout     = "TIMEOUT"
	CodeTransport   = "TRANSPORT_ERROR"
	CodeDecode      = "DECODE_ERROR"
	CodeRateLimited = "RATE_LIMITED"
	CodeNotFound    = "NOT_FOUND"
	CodeInternal    = "INTERNAL_ERROR"
)

// =============================================================================
// Query / Response
// =============================================================================

// Query 结构化查询
type Query struct {
	Method       Method         `json:"method"`
	ResourceType ResourceType   `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Parameters   map[string]any `json:"parameters"`
	Filters      map[string]any `json:"filters"`
	Context      map[string]any `json:"context"`
	RequestID    string         `json:"request_id"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewQuery 创建查询并生成唯一 request_id
func NewQuery(method Method, rt ResourceType) *Query {
	return &Query{
		Method:       method,
		ResourceType: rt,
		Parameters:   map[string]any{},
		Filters:      map[string]any{},
		Context:      map[string]any{},
		RequestID:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
	}
}

// WithResourceID sets the resource id.
func (q *Query) WithResourceID(id string) *Query {
	q.ResourceID = id
	return q
}

// WithParameters merges params into the query parameters.
func (q *Query) WithParameters(params map[string]any) *Query {
	maps.Copy(q.Parameters, params)
	return q
}

// WithFilters merges filters into the query filters.
func (q *Query) WithFilters(filters map[string]any) *Query {
	maps.Copy(q.Filters, filters)
	return q
}

// WithContext merges values into the query context.
func (q *Query) WithContext(values map[string]any) *Query {
	maps.Copy(q.Context, values)
	return q
}

// Validate 校验查询
func (q *Query) Validate() error {
	if !q.Method.Valid() {
		return fmt.Errorf("unknown method %q", q.Method)
	}
	if q.ResourceType == "" {
		return fmt.Errorf("resource type is required")
	}
	if q.RequestID == "" {
		return fmt.Errorf("request id is required")
	}
	return nil
}

// Response 结构化响应
type Response struct {
	RequestID        string         `json:"request_id"`
	Status           Status         `json:"status"`
	Data             any            `json:"data"`
	ErrorCode        string         `json:"error_code,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
	DataSource       string         `json:"data_source"`
	CacheHit         bool           `json:"cache_hit"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Cost             float64        `json:"cost"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(requestID string, data any, source string) *Response {
	return &Response{
		RequestID:  requestID,
		Status:     StatusSuccess,
		Data:       data,
		DataSource: source,
		Metadata:   map[string]any{},
	}
}

// NewPartialResponse 创建部分成功响应，错误字段描述缺失部分
func NewPartialResponse(requestID string, data any, source, code, message string) *Response {
	return &Response{
		RequestID:    requestID,
		Status:       StatusPartial,
		Data:         data,
		ErrorCode:    code,
		ErrorMessage: message,
		DataSource:   source,
		Metadata:     map[string]any{},
	}
}

// NewErrorResponse 创建错误响应，data 恒为 nil
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		RequestID:    requestID,
		Status:       StatusError,
		ErrorCode:    code,
		ErrorMessage: message,
		Metadata:     map[string]any{},
	}
}

// IsSuccess reports whether the response carries usable data.
func (r *Response) IsSuccess() bool {
	return r != nil && (r.Status == StatusSuccess || r.Status == StatusPartial)
}

// Confidence 返回服务器在 metadata.confidence 中给出的置信度
func (r *Response) Confidence() (float64, bool) {
	if r == nil || r.Metadata == nil {
		return 0, false
	}
	switch v := r.Metadata["confidence"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// =============================================================================
// 调用方身份与服务器描述
// =============================================================================

// CallerIdentity 调用方身份，随每个请求发送
type CallerIdentity struct {
	AgentID      string   `json:"agent_id"`
	SessionID    string   `json:"session_id"`
	Capabilities []string `json:"capabilities"`
}

// TransportType 传输类型
type TransportType string

const (
	TransportHTTP      TransportType = "http"
	TransportWebSocket TransportType = "websocket"
)

// AuthDescriptor 认证描述
type AuthDescriptor struct {
	Strategy string
	Secret   string
	// Header 覆盖 api_key 策略的默认请求头
	Header string
}

// Capability 服务器能力
type Capability struct {
	ResourceTypes []ResourceType
	Methods       []Method
	// RateLimit 每分钟请求数，0 表示不限
	RateLimit int
}

// ServerDescriptor 资源服务器描述，启动后只读
type ServerDescriptor struct {
	Name           string
	Version        string
	Endpoints      map[TransportType]string
	Auth           AuthDescriptor
	Capabilities   []Capability
	HealthCheckURL string
	Timeout        time.Duration
	CostPerCall    float64
}

// Clone 返回深拷贝，调用方无法通过副本修改原描述
func (d ServerDescriptor) Clone() ServerDescriptor {
	out := d
	out.Endpoints = maps.Clone(d.Endpoints)
	out.Capabilities = make([]Capability, len(d.Capabilities))
	for i, c := range d.Capabilities {
		out.Capabilities[i] = Capability{
			ResourceTypes: slices.Clone(c.ResourceTypes),
			Methods:       slices.Clone(c.Methods),
			RateLimit:     c.RateLimit,
		}
	}
	return out
}

// Supports reports whether any capability lists rt.
func (d ServerDescriptor) Supports(rt ResourceType) bool {
	for _, c := range d.Capabilities {
		if slices.Contains(c.ResourceTypes, rt) {
			return true
		}
	}
	return false
}

// RateLimit 返回最严格的正数限流值（每分钟），0 表示不限
func (d ServerDescriptor) RateLimit() int {
	limit := 0
	for _, c := range d.Capabilities {
		if c.RateLimit > 0 && (limit == 0 || c.RateLimit < limit) {
			limit = c.RateLimit
		}
	}
	return limit
}

// CallTimeout 返回单次调用超时
func (d ServerDescriptor) CallTimeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultCallTimeout
}

// Endpoint 返回指定传输的地址
func (d ServerDescriptor) Endpoint(t TransportType) (string, bool) {
	u, ok := d.Endpoints[t]
	return u, ok && u != ""
}

// =============================================================================
// 线协议消息
// =============================================================================

// httpRequestBody POST {base}/{version}/{method} 的请求体
type httpRequestBody struct {
	ResourceType   ResourceType   `json:"resource_type"`
	ResourceID     string         `json:"resource_id,omitempty"`
	Parameters     map[string]any `json:"parameters"`
	Filters        map[string]any `json:"filters"`
	Context        map[string]any `json:"context"`
	CallerIdentity CallerIdentity `json:"caller_identity"`
}

// httpReplyBody 资源服务器 HTTP 响应体
type httpReplyBody struct {
	Data     any            `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Source   string         `json:"source,omitempty"`
	CacheHit bool           `json:"cache_hit"`
	Status   Status         `json:"status,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// WebSocket 消息类型
const (
	wsTypeHandshake = "handshake"
	wsTypeQuery     = "query"
	wsTypeResponse  = "response"
	wsTypePing      = "ping"
	wsTypePong      = "pong"
)

// wsMessage WebSocket 信封，握手、查询、响应、心跳共用
type wsMessage struct {
	Type string `json:"type"`

	// 握手
	AgentID      string   `json:"agent_id,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Version      string   `json:"version,omitempty"`

	// 查询 / 响应关联
	RequestID string `json:"request_id,omitempty"`

	// 查询
	Method         Method          `json:"method,omitempty"`
	ResourceType   ResourceType    `json:"resource_type,omitempty"`
	ResourceID     string          `json:"resource_id,omitempty"`
	Parameters     map[string]any  `json:"parameters,omitempty"`
	Filters        map[string]any  `json:"filters,omitempty"`
	Context        map[string]any  `json:"context,omitempty"`
	CallerIdentity *CallerIdentity `json:"caller_identity,omitempty"`

	// 响应 / 握手确认
	Status       string         `json:"status,omitempty"`
	Data         any            `json:"data,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Source       string         `json:"source,omitempty"`
	CacheHit     bool           `json:"cache_hit,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

func newHTTPRequestBody(q *Query, id CallerIdentity) httpRequestBody {
	return httpRequestBody{
		ResourceType:   q.ResourceType,
		ResourceID:     q.ResourceID,
		Parameters:     nonNil(q.Parameters),
		Filters:        nonNil(q.Filters),
		Context:        nonNil(q.Context),
		CallerIdentity: id,
	}
}

func newWSQuery(q *Query, id CallerIdentity) wsMessage {
	return wsMessage{
		Type:           wsTypeQuery,
		RequestID:      q.RequestID,
		Method:         q.Method,
		ResourceType:   q.ResourceType,
		ResourceID:     q.ResourceID,
		Parameters:     nonNil(q.Parameters),
		Filters:        nonNil(q.Filters),
		Context:        nonNil(q.Context),
		CallerIdentity: &id,
	}
}

// toResponse 将 WebSocket 响应消息映射为 Response
func (m *wsMessage) toResponse(requestID, defaultSource string) *Response {
	source := m.Source
	if source == "" {
		source = defaultSource
	}
	var resp *Response
	switch Status(m.Status) {
	case StatusSuccess:
		resp = NewSuccessResponse(requestID, m.Data, source)
	case StatusPartial:
		resp = NewPartialResponse(requestID, m.Data, source, m.ErrorCode, m.ErrorMessage)
	default:
		code := m.ErrorCode
		if code == "" {
			code = CodeInternal
		}
		msg := m.ErrorMessage
		if msg == "" {
			msg = "resource server returned status " + m.Status
		}
		resp = NewErrorResponse(requestID, code, msg)
		resp.DataSource = source
	}
	resp.CacheHit = m.CacheHit
	if m.Metadata != nil {
		resp.Metadata = m.Metadata
	}
	return resp
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
