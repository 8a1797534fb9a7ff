package dataprovider

import (
	"time"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
)

// 结果来源与置信度常量
const (
	SourceDegraded = "degraded"

	ConfidenceProtocol = 1.0
	ConfidenceSnapshot = 0.7
	ConfidenceStatic   = 0.5
	ConfidenceDegraded = 0.1

	// partial 响应的置信度系数
	partialConfidenceFactor = 0.5
)

// Result 一次数据获取的结果
type Result struct {
	Success      bool             `json:"success"`
	ResourceType mcp.ResourceType `json:"resource_type"`
	ResourceID   string           `json:"resource_id,omitempty"`
	Data         any              `json:"data,omitempty"`
	Source       string           `json:"source"`
	Confidence   float64          `json:"confidence"`
	CacheHit     bool             `json:"cache_hit"`
	Partial      bool             `json:"partial,omitempty"`
	Fallback     bool             `json:"fallback,omitempty"`
	Degraded     bool             `json:"degraded,omitempty"`
	Cost         float64          `json:"cost,omitempty"`
	LatencyMS    float64          `json:"latency_ms"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// clone 浅拷贝，缓存读出的结果不与缓存内的值共享标志位
func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// failure 构造失败结果（策略内部使用，不直接返回给调用方）
func failure(req Request, source, code, message string) *Result {
	return &Result{
		Success:      false,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Source:       source,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// degraded 所有策略失败后的降级结果
func degraded(req Request, code, message string) *Result {
	return &Result{
		Success:      false,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Source:       SourceDegraded,
		Confidence:   ConfidenceDegraded,
		Degraded:     true,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}
