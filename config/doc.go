// Package config 提供 AI SEO Architects 核心的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 SEOARCH）的顺序加载，
// 包含资源服务器描述、缓存与回退策略、工作流步数预算、Redis、
// 数据库、日志与遥测配置。
package config
