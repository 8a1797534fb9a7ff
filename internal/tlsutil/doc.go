// Package tlsutil 提供集中式 TLS 与连接池配置，
// 为资源服务器 HTTP/WebSocket 客户端和 Redis 连接提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
