package workflow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ExecutionStatus 执行状态
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// NodeExecution 单个节点的执行记录
type NodeExecution struct {
	Node      string          `json:"node"`
	Agent     string          `json:"agent"`
	Level     string          `json:"level,omitempty"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
}

// ExecutionHistory 一次运行的节点级执行路径
type ExecutionHistory struct {
	RunID     string           `json:"run_id"`
	TaskType  string           `json:"task_type"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Status    ExecutionStatus  `json:"status"`
	Nodes     []*NodeExecution `json:"nodes"`
	mu        sync.RWMutex
}

// NewExecutionHistory 创建执行历史
func NewExecutionHistory(runID, taskType string, start time.Time) *ExecutionHistory {
	return &ExecutionHistory{
		RunID:     runID,
		TaskType:  taskType,
		StartTime: start,
		Status:    ExecutionStatusRunning,
		Nodes:     make([]*NodeExecution, 0),
	}
}

// RecordNodeStart 记录节点开始
func (h *ExecutionHistory) RecordNodeStart(nodeName, agentName, level string, at time.Time) *NodeExecution {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := &NodeExecution{
		Node:      nodeName,
		Agent:     agentName,
		Level:     level,
		StartTime: at,
		Status:    ExecutionStatusRunning,
	}
	h.Nodes = append(h.Nodes, n)
	return n
}

// RecordNodeEnd 记录节点结束
func (h *ExecutionHistory) RecordNodeEnd(n *NodeExecution, at time.Time, status RecordStatus, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n.EndTime = at
	n.Duration = at.Sub(n.StartTime)
	n.Error = errMsg
	if status == StatusSuccess {
		n.Status = ExecutionStatusCompleted
	} else {
		n.Status = ExecutionStatusFailed
	}
}

// Complete 标记运行结束
func (h *ExecutionHistory) Complete(at time.Time, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = at
	h.Duration = at.Sub(h.StartTime)
	if ok {
		h.Status = ExecutionStatusCompleted
	} else {
		h.Status = ExecutionStatusFailed
	}
}

// GetNodes 节点记录副本
func (h *ExecutionHistory) GetNodes() []NodeExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	nodes := make([]NodeExecution, len(h.Nodes))
	for i, n := range h.Nodes {
		nodes[i] = *n
	}
	return nodes
}

// GetNode 按节点名查找第一次执行
func (h *ExecutionHistory) GetNode(nodeName string) (NodeExecution, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, n := range h.Nodes {
		if n.Node == nodeName {
			return *n, true
		}
	}
	return NodeExecution{}, false
}

// HistoryStore 执行历史存储
type HistoryStore interface {
	Save(ctx context.Context, h *ExecutionHistory) error
	Get(ctx context.Context, runID string) (*ExecutionHistory, bool, error)
	// Recent 最近 n 次运行，按开始时间倒序
	Recent(ctx context.Context, n int) ([]*ExecutionHistory, error)
}

// DefaultMemoryHistoryLimit 内存存储默认保留条数
const DefaultMemoryHistoryLimit = 1000

// MemoryHistoryStore 内存执行历史存储，超过上限时丢弃最早的运行
type MemoryHistoryStore struct {
	histories map[string]*ExecutionHistory
	order     []string
	limit     int
	mu        sync.RWMutex
}

// NewMemoryHistoryStore 创建内存存储，limit<=0 使用默认值
func NewMemoryHistoryStore(limit int) *MemoryHistoryStore {
	if limit <= 0 {
		limit = DefaultMemoryHistoryLimit
	}
	return &MemoryHistoryStore{
		histories: make(map[string]*ExecutionHistory),
		limit:     limit,
	}
}

// Save implements HistoryStore.
func (s *MemoryHistoryStore) Save(_ context.Context, h *ExecutionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.histories[h.RunID]; !exists {
		s.order = append(s.order, h.RunID)
	}
	s.histories[h.RunID] = h
	for len(s.order) > s.limit {
		delete(s.histories, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get implements HistoryStore.
func (s *MemoryHistoryStore) Get(_ context.Context, runID string) (*ExecutionHistory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[runID]
	return h, ok, nil
}

// Recent implements HistoryStore.
func (s *MemoryHistoryStore) Recent(_ context.Context, n int) ([]*ExecutionHistory, error) {
	s.mu.RLock()
	all := make([]*ExecutionHistory, 0, len(s.histories))
	for _, h := range s.histories {
		all = append(all, h)
	}
	s.mu.RUnlock()

	sortNewestFirst(all)
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// ListByStatus 按状态筛选
func (s *MemoryHistoryStore) ListByStatus(status ExecutionStatus) []*ExecutionHistory {
	return s.filter(func(h *ExecutionHistory) bool { return h.Status == status })
}

// ListByTaskType 按任务类型筛选
func (s *MemoryHistoryStore) ListByTaskType(taskType string) []*ExecutionHistory {
	return s.filter(func(h *ExecutionHistory) bool { return h.TaskType == taskType })
}

// ListByTimeRange 开始时间在 [start, end] 内的运行
func (s *MemoryHistoryStore) ListByTimeRange(start, end time.Time) []*ExecutionHistory {
	return s.filter(func(h *ExecutionHistory) bool {
		return !h.StartTime.Before(start) && !h.StartTime.After(end)
	})
}

// Len 已保存条数
func (s *MemoryHistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}

func (s *MemoryHistoryStore) filter(keep func(*ExecutionHistory) bool) []*ExecutionHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ExecutionHistory
	for _, h := range s.histories {
		if keep(h) {
			result = append(result, h)
		}
	}
	sortNewestFirst(result)
	return result
}

func sortNewestFirst(hs []*ExecutionHistory) {
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].StartTime.Equal(hs[j].StartTime) {
			return hs[i].RunID < hs[j].RunID
		}
		return hs[i].StartTime.After(hs[j].StartTime)
	})
}
