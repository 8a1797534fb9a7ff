/*
Package testutil 提供编排核心测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertPath / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON
  - Redis: NewRedis 启动 miniredis 并返回连接好的 cache.Manager

# 子包

  - testutil/mocks: MockClient（协议客户端）、MockFactory（ClientFactory）、
    MockHandler（agent 处理器），均支持 Builder 模式与错误注入
  - testutil/fixtures: 任务、服务器配置与描述的样例

# 使用示例

	ctx := testutil.TestContext(t)
	factory := mocks.NewMockFactory()
	factory.Client("seo-data").WithData(mcp.ResourceTechnicalData, map[string]any{"errors": 0})
	app, err := architects.New(ctx, cfg, architects.WithClientFactory(factory.New))
*/
package testutil
