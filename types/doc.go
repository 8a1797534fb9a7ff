// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供编排核心与数据集成层共享的基础类型。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、workflow、
agent/protocol/mcp 与 dataprovider 提供统一的错误契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode: 结构化错误，含 HTTP 状态码、Retryable 标记与 Cause
  - IsRetryable / GetErrorCode: 基于 errors.As 的错误检查辅助函数

# 错误分类

只有编程错误（图构建失败、未连接即调用 Execute、配置非法）会以 Go error
返回；远端与运行期失败以数据形式（Response / Result / ProcessingRecord）
表达，保证工作流总能执行完毕。
*/
package types
