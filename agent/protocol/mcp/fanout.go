package mcp

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Andrew821667/ai-seo-architects/types"
)

// FanOut 跨多个资源服务器并发执行同一查询
type FanOut struct {
	logger *zap.Logger
}

// NewFanOut 创建扇出执行器
func NewFanOut(logger *zap.Logger) *FanOut {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanOut{logger: logger.With(zap.String("component", "mcp_fanout"))}
}

// ExecuteAll 并发执行并按 clients 顺序返回全部响应。
// 单个客户端失败只影响它自己的响应，不会取消其它调用。
func (f *FanOut) ExecuteAll(ctx context.Context, clients []Client, q *Query) []*Response {
	out := make([]*Response, len(clients))
	var g errgroup.Group
	for i, c := range clients {
		g.Go(func() error {
			out[i] = f.call(ctx, c, q)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ExecuteFirst 返回第一个成功响应并取消其余调用；
// 全部失败时返回最后到达的错误响应。
func (f *FanOut) ExecuteFirst(ctx context.Context, clients []Client, q *Query) *Response {
	if len(clients) == 0 {
		return NewErrorResponse(q.RequestID, CodeNotFound, "no clients available")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *Response, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range clients {
		g.Go(func() error {
			results <- f.call(gctx, c, q)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var last *Response
	for resp := range results {
		if resp.IsSuccess() {
			cancel()
			return resp
		}
		last = resp
	}
	return last
}

func (f *FanOut) call(ctx context.Context, c Client, q *Query) *Response {
	resp, err := c.Execute(ctx, q)
	if err != nil {
		name := c.Descriptor().Name
		f.logger.Warn("fan-out call rejected", zap.String("server", name), zap.Error(err))
		code := CodeInternal
		if errors.Is(err, ErrNotConnected) {
			code = string(types.ErrNotConnected)
		}
		resp = NewErrorResponse(q.RequestID, code, err.Error())
		resp.DataSource = name
	}
	return resp
}
