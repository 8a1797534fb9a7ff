// Package mcp 实现与外部资源服务器通信的标准化数据协议。
//
// 本包提供请求/响应编解码（Query / Response）、HTTP 与 WebSocket
// 两种传输的协议客户端（共享 connect → execute → health-check →
// disconnect 生命周期）、可插拔认证策略、按 (server, transport)
// 单飞构造的客户端注册表、跨服务器扇出调用，以及实现同一线协议的
// 参考资源服务器。
//
// 远端失败一律编码为 status=error 的 Response；只有本地误用
// （未 Connect 即 Execute）才会返回 Go error。
package mcp
