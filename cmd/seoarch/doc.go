// =============================================================================
// seoarch 命令行入口
// =============================================================================
// 编排核心的命令行工具：执行一次工作流任务，或启动参考资源服务器。
//
// 使用方法:
//
//	seoarch run task.json                     # 从文件读取任务并执行
//	seoarch run --task-type seo_audit --set resource_id=example.com
//	cat task.json | seoarch run               # 从 stdin 读取任务
//	seoarch serve-mock --addr 127.0.0.1:8765  # 启动参考资源服务器
//	seoarch version                           # 显示版本信息
//
// 所有命令都接受 --config 指定 YAML 配置文件，环境变量前缀为 SEOARCH_。
// =============================================================================
package main
