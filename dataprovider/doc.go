/*
Package dataprovider 为 agent 提供统一的数据访问入口：本地 TTL 缓存、
可选 Redis 二级缓存、按顺序执行的获取策略（协议服务器 → 本地兜底源），
以及全部失败时的降级结果。

Provider.Get 永远返回非 nil 的 *Result，远端失败只体现在结果数据中。

置信度约定：

  - 协议服务器：1.0，或服务器 metadata.confidence；partial 响应乘以 0.5
  - StaticSource：0.5
  - SnapshotSource：0.7
  - 降级：0.1
*/
package dataprovider
