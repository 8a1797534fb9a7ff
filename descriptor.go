package architects

import (
	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/config"
)

// DescriptorFromConfig 把配置中的服务器描述转换为协议层描述（深拷贝）
func DescriptorFromConfig(c config.ResourceServerConfig) mcp.ServerDescriptor {
	desc := mcp.ServerDescriptor{
		Name:      c.Name,
		Version:   c.Version,
		Endpoints: make(map[mcp.TransportType]string, len(c.Endpoints)),
		Auth: mcp.AuthDescriptor{
			Strategy: c.Auth.Strategy,
			Secret:   c.Auth.Secret,
			Header:   c.Auth.Header,
		},
		Capabilities:   make([]mcp.Capability, 0, len(c.Capabilities)),
		HealthCheckURL: c.HealthCheckURL,
		Timeout:        c.Timeout,
		CostPerCall:    c.CostPerCall,
	}
	for tr, url := range c.Endpoints {
		desc.Endpoints[mcp.TransportType(tr)] = url
	}
	for _, capCfg := range c.Capabilities {
		capability := mcp.Capability{RateLimit: capCfg.RateLimit}
		for _, rt := range capCfg.ResourceTypes {
			capability.ResourceTypes = append(capability.ResourceTypes, mcp.ResourceType(rt))
		}
		for _, m := range capCfg.Methods {
			capability.Methods = append(capability.Methods, mcp.Method(m))
		}
		desc.Capabilities = append(desc.Capabilities, capability)
	}
	return desc
}

// TransportFor 配置的首选传输，为空时按描述自动选择
func TransportFor(c config.ResourceServerConfig, desc mcp.ServerDescriptor) mcp.TransportType {
	if c.Transport != "" {
		return mcp.TransportType(c.Transport)
	}
	return mcp.PreferredTransport(desc)
}

// IdentityFromConfig 调用方身份
func IdentityFromConfig(c config.AgentConfig) mcp.CallerIdentity {
	caps := make([]string, len(c.Capabilities))
	copy(caps, c.Capabilities)
	return mcp.CallerIdentity{
		AgentID:      c.ID,
		SessionID:    c.SessionID,
		Capabilities: caps,
	}
}
