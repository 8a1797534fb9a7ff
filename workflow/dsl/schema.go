package dsl

// GraphDSL 编排图 DSL 顶层结构
type GraphDSL struct {
	// Version DSL 版本
	Version string `yaml:"version" json:"version"`
	// Name 图名称
	Name string `yaml:"name" json:"name"`
	// Description 描述
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Entry 入口节点
	Entry string `yaml:"entry" json:"entry"`
	// MaxSteps 步数上限，0 表示使用编排器默认值
	MaxSteps int `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	// Nodes 节点定义
	Nodes []NodeDef `yaml:"nodes" json:"nodes"`
}

// NodeDef 节点定义。Next 与 Router 二选一，都为空时节点之后结束。
type NodeDef struct {
	Name  string `yaml:"name" json:"name"`
	Agent string `yaml:"agent,omitempty" json:"agent,omitempty"` // 为空时使用节点名
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Next 无条件后继，可以是 end
	Next string `yaml:"next,omitempty" json:"next,omitempty"`

	// Router 命名路由器（task_type / score 或自定义注册的）
	Router string `yaml:"router,omitempty" json:"router,omitempty"`
	// Routes 路由标签 -> 目标节点（end 表示终止）
	Routes map[string]string `yaml:"routes,omitempty" json:"routes,omitempty"`
}

// EndTarget DSL 中表示终止的目标名
const EndTarget = "end"

// SupportedVersion 当前支持的 DSL 版本
const SupportedVersion = "1"
