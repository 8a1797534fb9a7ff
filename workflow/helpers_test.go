package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/Andrew821667/ai-seo-architects/agent"
)

// ok 返回固定结果的 handler
func ok(extra agent.Result) agent.Handler {
	return agent.HandlerFunc(func(context.Context, agent.Task) (agent.Result, error) {
		out := agent.Result{agent.KeySuccess: true}
		for k, v := range extra {
			out[k] = v
		}
		return out, nil
	})
}

// taskRecorder 记录每次调用收到的任务
type taskRecorder struct {
	mu    sync.Mutex
	tasks []agent.Task
}

func (r *taskRecorder) handler() agent.Handler {
	return agent.HandlerFunc(func(_ context.Context, task agent.Task) (agent.Result, error) {
		r.mu.Lock()
		r.tasks = append(r.tasks, task)
		r.mu.Unlock()
		return agent.Result{agent.KeySuccess: true}, nil
	})
}

func (r *taskRecorder) all() []agent.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]agent.Task(nil), r.tasks...)
}

// stepClock 每次调用前进固定步长
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newRegistry(handlers map[string]agent.Handler) *agent.Registry {
	reg := agent.NewRegistry(nil)
	for name, h := range handlers {
		reg.Register(name, h)
	}
	return reg
}

var testTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
