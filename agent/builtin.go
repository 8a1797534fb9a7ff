package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/dataprovider"
	"github.com/Andrew821667/ai-seo-architects/types"
)

// 任务类型
const (
	TaskLeadProcessing    = "lead_processing"
	TaskSEOAudit          = "seo_audit"
	TaskContentStrategy   = "content_strategy"
	TaskStrategicPlanning = "strategic_planning"
)

// 路由标签
const (
	RouteSales     = "sales"
	RouteAudit     = "audit"
	RouteContent   = "content"
	RouteStrategic = "strategic"
	RouteEnd       = "end"
)

// 标准 SEO 图中的 agent 名称
const (
	NameCoordinator        = "coordinator"
	NameLeadQualification  = "lead_qualification"
	NameTechnicalSEOAudit  = "technical_seo_audit"
	NameContentStrategy    = "content_strategy"
	NameStrategicPlanning  = "strategic_planning"
	NameProposalGeneration = "proposal_generation"
	NameSalesConversation  = "sales_conversation"
	NameNurtureCampaign    = "nurture_campaign"
)

var taskRoutes = map[string]string{
	TaskLeadProcessing:    RouteSales,
	TaskSEOAudit:          RouteAudit,
	TaskContentStrategy:   RouteContent,
	TaskStrategicPlanning: RouteStrategic,
}

// RouteForTask 任务类型对应的路由标签，未知类型返回 RouteEnd
func RouteForTask(taskType string) string {
	if r, ok := taskRoutes[taskType]; ok {
		return r
	}
	return RouteEnd
}

// Coordinator 校验任务类型并回显路由信息
type Coordinator struct{}

// Process implements Handler.
func (Coordinator) Process(_ context.Context, task Task) (Result, error) {
	if task.TaskType == "" {
		return nil, types.NewError(types.ErrAgentFailed, "task_type is required")
	}
	route := RouteForTask(task.TaskType)
	return Result{
		KeySuccess:  true,
		"task_type": task.TaskType,
		"route":     route,
		"known":     route != RouteEnd,
	}, nil
}

// DataFetcher 数据提供者的最小接口
type DataFetcher interface {
	Get(ctx context.Context, rt mcp.ResourceType, resourceID string, params map[string]any) *dataprovider.Result
}

// DataAgent 通过数据提供者获取一个资源并报告来源和置信度。
//
// input_data 中可用的键：resource_type（覆盖默认类型）、resource_id、params。
// 数据或输入中带有 score 时原样透传，供评分路由使用。
type DataAgent struct {
	ResourceType mcp.ResourceType
	Fetcher      DataFetcher
}

// Process implements Handler.
func (a *DataAgent) Process(ctx context.Context, task Task) (Result, error) {
	if a.Fetcher == nil {
		return nil, types.NewError(types.ErrAgentFailed, "data agent has no fetcher")
	}

	rt := a.ResourceType
	if s, ok := task.InputData["resource_type"].(string); ok && s != "" {
		rt = mcp.ResourceType(s)
	}
	if !rt.Valid() {
		return nil, types.NewError(types.ErrAgentFailed, fmt.Sprintf("invalid resource type %q", rt))
	}
	id, _ := task.InputData["resource_id"].(string)
	params, _ := task.InputData["params"].(map[string]any)

	res := a.Fetcher.Get(ctx, rt, id, params)

	out := Result{
		KeySuccess:      res.Success,
		"resource_type": string(rt),
		"data":          res.Data,
		"source":        res.Source,
		"confidence":    res.Confidence,
		"cache_hit":     res.CacheHit,
		"degraded":      res.Degraded,
	}
	if !res.Success {
		out[KeyError] = res.ErrorMessage
		out["error_code"] = res.ErrorCode
	}
	if score, ok := pickScore(res.Data, task.InputData); ok {
		out[KeyScore] = score
	}
	return out, nil
}

func pickScore(data any, input map[string]any) (float64, bool) {
	if m, ok := data.(map[string]any); ok {
		if s, ok := number(m[KeyScore]); ok {
			return s, true
		}
	}
	return number(input[KeyScore])
}

// DefaultBindings 标准 SEO 图中数据节点与资源类型的绑定
func DefaultBindings() map[string]mcp.ResourceType {
	return map[string]mcp.ResourceType{
		NameLeadQualification:  mcp.ResourceClientData,
		NameTechnicalSEOAudit:  mcp.ResourceTechnicalData,
		NameContentStrategy:    mcp.ResourceContentData,
		NameStrategicPlanning:  mcp.ResourceCompetitiveData,
		NameProposalGeneration: mcp.ResourceClientData,
		NameSalesConversation:  mcp.ResourceClientData,
		NameNurtureCampaign:    mcp.ResourceAnalyticsData,
	}
}

// RegisterDefaults 注册 coordinator 和标准图所需的数据 agent
func RegisterDefaults(reg *Registry, fetcher DataFetcher, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg.Register(NameCoordinator, Coordinator{})
	for name, rt := range DefaultBindings() {
		reg.Register(name, &DataAgent{ResourceType: rt, Fetcher: fetcher})
	}
	logger.Debug("default agents registered", zap.Int("count", reg.Len()))
}
