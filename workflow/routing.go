package workflow

import (
	"github.com/Andrew821667/ai-seo-architects/agent"
)

// 节点层级
const (
	LevelExecutive   = "executive"
	LevelManagement  = "management"
	LevelOperational = "operational"
)

// 评分路由标签
const (
	RouteHot  = "hot"
	RouteWarm = "warm"
	RouteCold = "cold"
)

// 评分阈值
const (
	HotScoreThreshold  = 90.0
	WarmScoreThreshold = 70.0
	ColdScoreThreshold = 50.0
)

// TaskTypeRouter 按任务类型路由：
// lead_processing→sales, seo_audit→audit, content_strategy→content,
// strategic_planning→strategic，其它返回 end。
func TaskTypeRouter(state *OrchestrationState) string {
	return agent.RouteForTask(state.TaskType)
}

// ScoreRouter 按上一条记录的 score 路由。
// 上一条记录缺失、失败或没有 score 时返回 end。
func ScoreRouter(state *OrchestrationState) string {
	last, ok := state.Last()
	if !ok || !last.Succeeded() {
		return RouteEnd
	}
	score, ok := last.Result.Score()
	if !ok {
		return RouteEnd
	}
	return ScoreLabel(score)
}

// ScoreLabel 分数对应的标签
func ScoreLabel(score float64) string {
	switch {
	case score >= HotScoreThreshold:
		return RouteHot
	case score >= WarmScoreThreshold:
		return RouteWarm
	case score >= ColdScoreThreshold:
		return RouteCold
	default:
		return RouteEnd
	}
}

// NewSEOGraph 标准 SEO 图：
//
//	coordinator ─(task type)→ lead_qualification | technical_seo_audit | content_strategy | strategic_planning
//	lead_qualification ─(score)→ proposal_generation | sales_conversation | nurture_campaign | END
//
// 其余分支节点之后到达 END。
func NewSEOGraph() *StateGraph {
	g := NewStateGraph().
		AddNode(agent.NameCoordinator, agent.NameCoordinator, WithLevel(LevelManagement)).
		AddNode(agent.NameLeadQualification, agent.NameLeadQualification, WithLevel(LevelOperational)).
		AddNode(agent.NameTechnicalSEOAudit, agent.NameTechnicalSEOAudit, WithLevel(LevelOperational)).
		AddNode(agent.NameContentStrategy, agent.NameContentStrategy, WithLevel(LevelOperational)).
		AddNode(agent.NameStrategicPlanning, agent.NameStrategicPlanning, WithLevel(LevelExecutive)).
		AddNode(agent.NameProposalGeneration, agent.NameProposalGeneration, WithLevel(LevelOperational)).
		AddNode(agent.NameSalesConversation, agent.NameSalesConversation, WithLevel(LevelOperational)).
		AddNode(agent.NameNurtureCampaign, agent.NameNurtureCampaign, WithLevel(LevelOperational)).
		SetEntry(agent.NameCoordinator)

	g.AddConditionalEdges(agent.NameCoordinator, TaskTypeRouter, map[string]string{
		agent.RouteSales:     agent.NameLeadQualification,
		agent.RouteAudit:     agent.NameTechnicalSEOAudit,
		agent.RouteContent:   agent.NameContentStrategy,
		agent.RouteStrategic: agent.NameStrategicPlanning,
		RouteEnd:             END,
	})
	g.AddConditionalEdges(agent.NameLeadQualification, ScoreRouter, map[string]string{
		RouteHot:  agent.NameProposalGeneration,
		RouteWarm: agent.NameSalesConversation,
		RouteCold: agent.NameNurtureCampaign,
		RouteEnd:  END,
	})
	for _, n := range []string{
		agent.NameTechnicalSEOAudit,
		agent.NameContentStrategy,
		agent.NameStrategicPlanning,
		agent.NameProposalGeneration,
		agent.NameSalesConversation,
		agent.NameNurtureCampaign,
	} {
		g.AddEdge(n, END)
	}
	return g
}
