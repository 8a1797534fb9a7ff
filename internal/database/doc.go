// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开 GORM 连接并管理底层连接池。

# 核心类型

  - Open：按驱动名（sqlite / postgres / mysql）构建 Dialector 并连接。
    sqlite 使用纯 Go 的 glebarez/sqlite，不依赖 cgo。
  - PoolManager：配置连接池参数、健康检查、事务（含可重试事务），
    并把连接数上报到 metrics.Collector。

离线快照数据源（dataprovider.SnapshotSource）通过本包获取 *gorm.DB。
*/
package database
