// Package telemetry 封装 OpenTelemetry SDK 初始化，
// 为工作流运行与节点执行提供 TracerProvider / MeterProvider。
// 禁用时保留全局 noop 实现，不连接任何外部服务。
package telemetry
