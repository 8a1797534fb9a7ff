package workflow

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Andrew821667/ai-seo-architects/agent"
	"github.com/Andrew821667/ai-seo-architects/internal/ctxkeys"
	"github.com/Andrew821667/ai-seo-architects/internal/metrics"
	"github.com/Andrew821667/ai-seo-architects/internal/telemetry"
	"github.com/Andrew821667/ai-seo-architects/types"
)

// DefaultMaxSteps 单次运行默认步数上限
const DefaultMaxSteps = 32

// RouteEnd 路由器表示“无事可做”的标签，未出现在路由表中时直接映射到 END
const RouteEnd = agent.RouteEnd

// 传给 agent 的上下文键
const (
	ContextRunID           = "run_id"
	ContextNode            = "node"
	ContextLevel           = "level"
	ContextPreviousResults = "previous_results"
)

// Option 编排器选项
type Option func(*Orchestrator)

// WithMaxSteps 设置步数上限，<=0 时使用默认值
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger.With(zap.String("component", "orchestrator"))
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithHistoryStore 每次运行结束后保存执行历史
func WithHistoryStore(s HistoryStore) Option {
	return func(o *Orchestrator) { o.history = s }
}

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTracer 替换默认的全局 tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// Orchestrator 编译后的图
type Orchestrator struct {
	nodes    map[string]node
	edges    map[string]edgeRule
	entry    string
	registry *agent.Registry

	maxSteps int
	logger   *zap.Logger
	metrics  *metrics.Collector
	history  HistoryStore
	tracer   trace.Tracer
	now      func() time.Time
}

func newOrchestrator(nodes map[string]node, edges map[string]edgeRule, entry string, registry *agent.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		nodes:    nodes,
		edges:    edges,
		entry:    entry,
		registry: registry,
		maxSteps: DefaultMaxSteps,
		logger:   zap.NewNop(),
		tracer:   telemetry.Tracer("workflow"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Entry 入口节点
func (o *Orchestrator) Entry() string { return o.entry }

// MaxSteps 步数上限
func (o *Orchestrator) MaxSteps() int { return o.maxSteps }

// Run 执行一次任务并返回最终状态。运行时失败都体现在处理记录中。
func (o *Orchestrator) Run(ctx context.Context, task agent.Task) *OrchestrationState {
	state := newState(uuid.NewString(), task, o.now())
	history := NewExecutionHistory(state.RunID, state.TaskType, state.StartedAt)

	ctx = ctxkeys.WithRunID(ctx, state.RunID)
	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.run_id", state.RunID),
		attribute.String("workflow.task_type", state.TaskType),
	))
	defer span.End()

	logger := o.logger.With(zap.String("run_id", state.RunID), zap.String("task_type", state.TaskType))
	logger.Info("workflow run started", zap.String("entry", o.entry))

	current := o.entry
	for current != END {
		if err := ctx.Err(); err != nil {
			state.appendRecord(o.failedRecord(current, types.ErrCancelled, err.Error()))
			logger.Warn("workflow run cancelled", zap.String("node", current), zap.Error(err))
			break
		}
		if state.Steps >= o.maxSteps {
			state.appendRecord(o.failedRecord(StepBudgetNode, types.ErrStepBudgetExceeded,
				fmt.Sprintf("step budget of %d exhausted before node %s", o.maxSteps, current)))
			logger.Warn("workflow step budget exhausted", zap.Int("max_steps", o.maxSteps))
			break
		}

		n := o.nodes[current]
		state.CurrentNode = current
		state.Steps++

		rec := o.executeNode(ctx, state, n, history)
		state.appendRecord(rec)
		if rec.ErrorCode == types.ErrAgentNotFound {
			break
		}

		next, routeFailure := o.next(n, state)
		if routeFailure != nil {
			state.appendRecord(*routeFailure)
			logger.Warn("workflow route failed", zap.String("node", n.name), zap.String("error", routeFailure.Error))
			break
		}
		if next == END {
			state.CurrentNode = END
		}
		current = next
	}

	state.FinishedAt = o.now()
	status := string(StatusSuccess)
	if !state.Succeeded() {
		status = string(StatusFailed)
		span.SetStatus(codes.Error, "workflow run has failed records")
	}
	span.SetAttributes(attribute.Int("workflow.steps", state.Steps))
	o.metrics.RecordWorkflowRun(state.TaskType, status)

	history.Complete(state.FinishedAt, state.Succeeded())
	if o.history != nil {
		if err := o.history.Save(context.WithoutCancel(ctx), history); err != nil {
			logger.Warn("failed to save execution history", zap.Error(err))
		}
	}

	logger.Info("workflow run finished",
		zap.String("status", status),
		zap.Int("steps", state.Steps),
		zap.Strings("path", state.Path()),
		zap.Duration("duration", state.FinishedAt.Sub(state.StartedAt)),
	)
	return state
}

func (o *Orchestrator) failedRecord(nodeName string, code types.ErrorCode, msg string) ProcessingRecord {
	return ProcessingRecord{
		NodeName:  nodeName,
		Status:    StatusFailed,
		Error:     msg,
		ErrorCode: code,
		Timestamp: o.now(),
	}
}

func (o *Orchestrator) executeNode(ctx context.Context, state *OrchestrationState, n node, history *ExecutionHistory) ProcessingRecord {
	ctx = ctxkeys.WithNode(ctx, n.name)
	ctx, span := o.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow.node", n.name),
		attribute.String("workflow.agent", n.agent),
	))
	defer span.End()

	start := o.now()
	exec := history.RecordNodeStart(n.name, n.agent, n.level, start)

	rec := ProcessingRecord{
		NodeName:  n.name,
		AgentName: n.agent,
		Level:     n.level,
		Timestamp: start,
	}

	handler, ok := o.registry.Get(n.agent)
	if !ok {
		rec.Status = StatusFailed
		rec.ErrorCode = types.ErrAgentNotFound
		rec.Error = fmt.Sprintf("agent %q is not registered", n.agent)
	} else {
		result, err := invoke(ctx, handler, o.buildTask(state, n))
		rec.Result = result
		switch {
		case err != nil:
			rec.Status = StatusFailed
			rec.ErrorCode = types.GetErrorCode(err)
			if rec.ErrorCode == "" {
				rec.ErrorCode = types.ErrAgentFailed
			}
			rec.Error = err.Error()
		case !result.Success():
			rec.Status = StatusFailed
			rec.ErrorCode = types.ErrAgentFailed
			rec.Error = "agent reported failure"
			if e, ok := result[agent.KeyError]; ok {
				rec.Error = fmt.Sprint(e)
			}
		default:
			rec.Status = StatusSuccess
		}
	}

	end := o.now()
	rec.Duration = end.Sub(start)
	history.RecordNodeEnd(exec, end, rec.Status, rec.Error)
	o.metrics.RecordNodeExecution(n.name, n.agent, string(rec.Status), rec.Duration)

	if rec.Status == StatusFailed {
		span.SetStatus(codes.Error, rec.Error)
		o.logger.Warn("node failed",
			zap.String("run_id", state.RunID),
			zap.String("node", n.name),
			zap.String("agent", n.agent),
			zap.String("code", string(rec.ErrorCode)),
			zap.String("error", rec.Error),
		)
	} else {
		o.logger.Debug("node completed",
			zap.String("run_id", state.RunID),
			zap.String("node", n.name),
			zap.Duration("duration", rec.Duration),
		)
	}
	return rec
}

// invoke 调用 agent，panic 转为错误
func invoke(ctx context.Context, h agent.Handler, task agent.Task) (res agent.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = types.NewError(types.ErrAgentFailed, fmt.Sprintf("agent panicked: %v", r))
		}
	}()
	return h.Process(ctx, task)
}

func (o *Orchestrator) buildTask(state *OrchestrationState, n node) agent.Task {
	taskCtx := make(map[string]any, len(state.Context)+4)
	maps.Copy(taskCtx, state.Context)
	taskCtx[ContextRunID] = state.RunID
	taskCtx[ContextNode] = n.name
	taskCtx[ContextLevel] = n.level
	taskCtx[ContextPreviousResults] = state.Results()
	return agent.Task{
		TaskType:  state.TaskType,
		InputData: state.InputData,
		Context:   taskCtx,
	}
}

// next 根据边规则决定下一个节点；路由失败时返回失败记录
func (o *Orchestrator) next(n node, state *OrchestrationState) (string, *ProcessingRecord) {
	rule, ok := o.edges[n.name]
	if !ok {
		return END, nil
	}
	if !rule.conditional() {
		return rule.to, nil
	}

	label, err := safeRoute(rule.route, state)
	if err != nil {
		rec := o.failedRecord("route:"+n.name, types.ErrInternal, err.Error())
		return "", &rec
	}
	if target, ok := rule.routes[label]; ok {
		return target, nil
	}
	if label == RouteEnd {
		return END, nil
	}
	rec := o.failedRecord("route:"+n.name, types.ErrUnknownRoute,
		fmt.Sprintf("route label %q from node %s has no target", label, n.name))
	return "", &rec
}

func safeRoute(route RouteFunc, state *OrchestrationState) (label string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("router panicked: %v", r)
		}
	}()
	return route(state), nil
}
