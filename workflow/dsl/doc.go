// Package dsl 提供 YAML 声明式编排图定义，
// 将节点、边和命名路由器解析为 workflow.StateGraph。
package dsl
