// =============================================================================
// 📦 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Agent:     DefaultAgentConfig(),
		Cache:     DefaultCacheConfig(),
		Fallback:  DefaultFallbackConfig(),
		Workflow:  DefaultWorkflowConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认进程配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MetricsPort:     9091,
		MockAddr:        "127.0.0.1:8765",
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultAgentConfig 返回默认调用方身份
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ID:                "seo-architects-core",
		SessionID:         "",
		Capabilities:      []string{"read"},
		ReconnectInterval: 5 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:           30 * time.Minute,
		Capacity:      1000,
		EvictRatio:    0.2,
		LatencyWindow: 1000,
		L2Enabled:     false,
		L2Prefix:      "seoarch:data:",
	}
}

// DefaultFallbackConfig 返回默认回退配置
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{Type: "static"}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxSteps:     32,
		HistoryStore: "memory",
		HistoryTTL:   24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "seoarch",
		Password:        "",
		Name:            "seoarch_snapshot.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "seo-architects",
		SampleRate:   0.1,
	}
}
