// Package ctxkeys 定义跨包传递的 context 键，避免各包各自定义导致冲突。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	runIDKey contextKey = "run_id"
	nodeKey  contextKey = "node"
)

// WithRunID 设置工作流 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithNode 设置当前执行的图节点
func WithNode(ctx context.Context, node string) context.Context {
	return context.WithValue(ctx, nodeKey, node)
}

// Node 获取当前节点
func Node(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(nodeKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
