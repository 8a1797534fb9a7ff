package workflow

import (
	"encoding/json"
	"time"

	"github.com/Andrew821667/ai-seo-architects/agent"
	"github.com/Andrew821667/ai-seo-architects/types"
)

// RecordStatus 处理记录状态
type RecordStatus string

const (
	StatusSuccess RecordStatus = "success"
	StatusFailed  RecordStatus = "failed"
)

// ProcessingRecord 单个节点（或路由、步数预算）的处理记录
type ProcessingRecord struct {
	NodeName  string          `json:"node_name"`
	AgentName string          `json:"agent_name,omitempty"`
	Level     string          `json:"level,omitempty"`
	Status    RecordStatus    `json:"status"`
	Result    agent.Result    `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode types.ErrorCode `json:"error_code,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Duration  time.Duration   `json:"duration"`
}

// Succeeded 记录是否成功
func (r ProcessingRecord) Succeeded() bool {
	return r.Status == StatusSuccess
}

// OrchestrationState 一次运行的状态。
// 处理记录只能通过编排器追加，Results 返回副本。
type OrchestrationState struct {
	RunID       string
	TaskType    string
	InputData   map[string]any
	Context     map[string]any
	CurrentNode string
	StartedAt   time.Time
	FinishedAt  time.Time
	Steps       int

	records []ProcessingRecord
}

func newState(runID string, task agent.Task, now time.Time) *OrchestrationState {
	return &OrchestrationState{
		RunID:     runID,
		TaskType:  task.TaskType,
		InputData: task.InputData,
		Context:   task.Context,
		StartedAt: now,
	}
}

func (s *OrchestrationState) appendRecord(r ProcessingRecord) {
	r.Result = r.Result.Clone()
	s.records = append(s.records, r)
}

// Results 处理记录副本（按执行顺序）
func (s *OrchestrationState) Results() []ProcessingRecord {
	out := make([]ProcessingRecord, len(s.records))
	for i, r := range s.records {
		r.Result = r.Result.Clone()
		out[i] = r
	}
	return out
}

// Len 记录条数
func (s *OrchestrationState) Len() int {
	return len(s.records)
}

// Last 最后一条记录
func (s *OrchestrationState) Last() (ProcessingRecord, bool) {
	if len(s.records) == 0 {
		return ProcessingRecord{}, false
	}
	r := s.records[len(s.records)-1]
	r.Result = r.Result.Clone()
	return r, true
}

// Succeeded 所有记录均成功
func (s *OrchestrationState) Succeeded() bool {
	for _, r := range s.records {
		if !r.Succeeded() {
			return false
		}
	}
	return len(s.records) > 0
}

// Path 按顺序经过的节点名（包含失败的路由和预算记录）
func (s *OrchestrationState) Path() []string {
	path := make([]string, len(s.records))
	for i, r := range s.records {
		path[i] = r.NodeName
	}
	return path
}

// MarshalJSON 导出包含处理记录的完整状态
func (s *OrchestrationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RunID             string             `json:"run_id"`
		TaskType          string             `json:"task_type"`
		InputData         map[string]any     `json:"input_data,omitempty"`
		Context           map[string]any     `json:"context,omitempty"`
		CurrentNode       string             `json:"current_node"`
		ProcessingResults []ProcessingRecord `json:"processing_results"`
		StartedAt         time.Time          `json:"started_at"`
		FinishedAt        time.Time          `json:"finished_at"`
		Steps             int                `json:"steps"`
	}{
		RunID:             s.RunID,
		TaskType:          s.TaskType,
		InputData:         s.InputData,
		Context:           s.Context,
		CurrentNode:       s.CurrentNode,
		ProcessingResults: s.Results(),
		StartedAt:         s.StartedAt,
		FinishedAt:        s.FinishedAt,
		Steps:             s.Steps,
	})
}
