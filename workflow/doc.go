// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供基于状态机路由的 agent 编排引擎。

# 概述

StateGraph 描述节点（agent 名称 + 层级）与边规则（无条件边或条件路由），
Compile 校验图结构后生成 Orchestrator。Orchestrator.Run 按顺序执行节点，
每一步向 OrchestrationState 追加一条 ProcessingRecord，直到到达 END。

# 核心类型

  - StateGraph         — 图构建器（AddNode / AddEdge / AddConditionalEdges / SetEntry）
  - Orchestrator       — 编译后的可执行图，Run(ctx, task) 返回最终状态
  - OrchestrationState — 一次运行的状态，处理记录只追加不修改
  - RouteFunc          — 条件路由函数，返回路由标签
  - TaskTypeRouter / ScoreRouter — 标准 SEO 图使用的路由器
  - ExecutionHistory   — 节点级执行历史，可保存到 HistoryStore（内存 / Redis）

# 运行时保证

  - 未知 agent、agent 错误与 panic 都记录为失败记录，不会中断进程
  - 路由标签不在映射表中时追加 route:<node> 失败记录并终止
  - 步数超过 MaxSteps（默认 32）时追加 __step_budget__ 失败记录并终止
  - 节点之间检查 ctx 取消；正在执行的 agent 调用不会被编排器中断
*/
package workflow
