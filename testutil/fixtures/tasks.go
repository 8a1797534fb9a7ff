// =============================================================================
// 📦 测试数据工厂 - 任务
// =============================================================================
// 提供各任务类型的预置任务，用于工作流测试
// =============================================================================
package fixtures

import "github.com/Andrew821667/ai-seo-architects/agent"

// LeadTask 线索处理任务，score 决定 lead_qualification 之后的分支
func LeadTask(company string, score float64) agent.Task {
	return agent.Task{
		TaskType: agent.TaskLeadProcessing,
		InputData: map[string]any{
			"resource_id":  company,
			"company_name": company,
			agent.KeyScore: score,
		},
	}
}

// AuditTask 技术 SEO 审计任务
func AuditTask(domain string) agent.Task {
	return agent.Task{
		TaskType:  agent.TaskSEOAudit,
		InputData: map[string]any{"resource_id": domain, "domain": domain},
	}
}

// ContentTask 内容策略任务
func ContentTask(topic string) agent.Task {
	return agent.Task{
		TaskType:  agent.TaskContentStrategy,
		InputData: map[string]any{"resource_id": topic, "topic": topic},
	}
}

// StrategyTask 战略规划任务
func StrategyTask(client string) agent.Task {
	return agent.Task{
		TaskType:  agent.TaskStrategicPlanning,
		InputData: map[string]any{"resource_id": client},
		Context:   map[string]any{"horizon": "12m"},
	}
}

// UnknownTask 协调器无法识别的任务类型
func UnknownTask() agent.Task {
	return agent.Task{TaskType: "translate_poetry"}
}
