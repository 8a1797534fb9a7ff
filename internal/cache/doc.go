// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis 客户端，为数据提供者的二级缓存与
工作流执行历史提供共享的 Redis 访问层。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Get/Set/Delete、JSON 读写，
    以及按分数排序的索引（最近运行列表）。
  - Config：地址、密码、连接池与默认 TTL。

# 错误语义

键不存在返回 ErrCacheMiss，用 IsCacheMiss 判断。
Manager 关闭后所有操作返回 ErrClosed。
*/
package cache
