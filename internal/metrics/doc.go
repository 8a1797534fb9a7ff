// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排核心指标采集能力，覆盖
协议调用、数据提供者、缓存、工作流与数据库五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 的所有记录方法对 nil 接收者安全，组件可以在未配置指标时
直接传入 nil。

# 主要能力

  - 协议指标：资源服务器调用总数、调用耗时、连接结果，
    按 server/transport/status 分组。
  - 数据提供者指标：请求总数（按 resource_type/source/status）、
    请求耗时、外部调用成本。
  - 缓存指标：命中、未命中与批量淘汰计数，按 cache_type（l1/l2）分组。
  - 工作流指标：运行总数、节点执行总数与耗时。
  - 参考服务器 HTTP 指标与数据库连接池指标。
*/
package metrics
