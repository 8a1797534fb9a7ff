// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP 服务器生命周期：非阻塞启动、优雅关闭与
SIGINT/SIGTERM 监听。

  - Manager：封装 net/http.Server，提供 Start/Shutdown/WaitForShutdown。
  - MetricsMux：挂载 Prometheus /metrics 与 /healthz，
    serve-mock 命令在其上叠加参考资源服务器。
*/
package server
