// =============================================================================
// 📦 测试数据工厂 - 资源服务器
// =============================================================================
package fixtures

import (
	"time"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/config"
)

// ServerSecret 样例服务器使用的 bearer 凭证
const ServerSecret = "test-secret"

// ServerConfig 返回 HTTP 资源服务器配置，声明给定资源类型的 GET 能力
func ServerConfig(name, url string, rts ...mcp.ResourceType) config.ResourceServerConfig {
	types := make([]string, len(rts))
	for i, rt := range rts {
		types[i] = string(rt)
	}
	return config.ResourceServerConfig{
		Name:        name,
		Version:     "1.0",
		Endpoints:   map[string]string{"http": url},
		Auth:        config.AuthConfig{Strategy: mcp.AuthBearer, Secret: ServerSecret},
		Timeout:     2 * time.Second,
		CostPerCall: 0.01,
		Capabilities: []config.CapabilityConfig{
			{ResourceTypes: types, Methods: []string{string(mcp.MethodGet)}},
		},
	}
}

// Descriptor 返回与 ServerConfig 对应的协议层描述
func Descriptor(name, url string, rts ...mcp.ResourceType) mcp.ServerDescriptor {
	return mcp.ServerDescriptor{
		Name:        name,
		Version:     "1.0",
		Endpoints:   map[mcp.TransportType]string{mcp.TransportHTTP: url},
		Auth:        mcp.AuthDescriptor{Strategy: mcp.AuthBearer, Secret: ServerSecret},
		Timeout:     2 * time.Second,
		CostPerCall: 0.01,
		Capabilities: []mcp.Capability{
			{ResourceTypes: rts, Methods: []mcp.Method{mcp.MethodGet}},
		},
	}
}

// Identity 测试调用方身份
func Identity() mcp.CallerIdentity {
	return mcp.CallerIdentity{AgentID: "test-agent", SessionID: "test-session", Capabilities: []string{"read"}}
}
