package agent

import (
	"context"
	"encoding/json"
	"maps"
	"strconv"
	"strings"
)

// Task 交给 agent 的任务
type Task struct {
	TaskType  string         `json:"task_type"`
	InputData map[string]any `json:"input_data"`
	Context   map[string]any `json:"context,omitempty"`
}

// Result agent 返回的结果（不透明 map）
type Result map[string]any

// 结果中的约定键
const (
	KeySuccess = "success"
	KeyError   = "error"
	KeyScore   = "score"
)

// Success 显式的 success 字段优先；缺省时没有 error 字段即视为成功
func (r Result) Success() bool {
	if r == nil {
		return false
	}
	if v, ok := r[KeySuccess].(bool); ok {
		return v
	}
	_, failed := r[KeyError]
	return !failed
}

// Score 读取 score 字段，接受数值或数字字符串
func (r Result) Score() (float64, bool) {
	return number(r[KeyScore])
}

// Clone 浅拷贝
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		// 命令行 --set score=95 传入的是字符串
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Handler agent 处理接口
type Handler interface {
	Process(ctx context.Context, task Task) (Result, error)
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, task Task) (Result, error)

// Process implements Handler.
func (f HandlerFunc) Process(ctx context.Context, task Task) (Result, error) {
	return f(ctx, task)
}
