package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Andrew821667/ai-seo-architects/agent"
	"github.com/Andrew821667/ai-seo-architects/types"
)

// 保留的节点名
const (
	// END 终止哨兵
	END = "__end__"
	// StepBudgetNode 步数预算耗尽时的记录节点名
	StepBudgetNode = "__step_budget__"
)

// RouteFunc 条件路由，根据当前状态返回路由标签
type RouteFunc func(state *OrchestrationState) string

// NodeOption 节点选项
type NodeOption func(*node)

// WithLevel 设置节点层级（executive / management / operational 等）
func WithLevel(level string) NodeOption {
	return func(n *node) { n.level = level }
}

type node struct {
	name  string
	agent string
	level string
}

// edgeRule 节点的出边规则，二选一
type edgeRule struct {
	to     string
	route  RouteFunc
	routes map[string]string
}

func (e edgeRule) conditional() bool { return e.route != nil }

// StateGraph 图构建器。构建期错误在 Compile 时统一返回。
type StateGraph struct {
	nodes map[string]*node
	order []string
	edges map[string]edgeRule
	entry string
	errs  []error
}

// NewStateGraph 创建空图
func NewStateGraph() *StateGraph {
	return &StateGraph{
		nodes: make(map[string]*node),
		edges: make(map[string]edgeRule),
	}
}

func reserved(name string) bool {
	return name == END || name == StepBudgetNode
}

func (g *StateGraph) fail(format string, args ...any) {
	g.errs = append(g.errs, fmt.Errorf(format, args...))
}

// AddNode 添加节点，agentName 为空时使用节点名
func (g *StateGraph) AddNode(name, agentName string, opts ...NodeOption) *StateGraph {
	switch {
	case name == "":
		g.fail("node name is empty")
		return g
	case reserved(name):
		g.fail("node name %q is reserved", name)
		return g
	}
	if _, dup := g.nodes[name]; dup {
		g.fail("duplicate node %q", name)
		return g
	}
	if agentName == "" {
		agentName = name
	}
	n := &node{name: name, agent: agentName}
	for _, opt := range opts {
		opt(n)
	}
	g.nodes[name] = n
	g.order = append(g.order, name)
	return g
}

func (g *StateGraph) setRule(from string, rule edgeRule) {
	if _, exists := g.edges[from]; exists {
		g.fail("node %q already has an edge rule", from)
		return
	}
	g.edges[from] = rule
}

// AddEdge 无条件边，to 可以是 END
func (g *StateGraph) AddEdge(from, to string) *StateGraph {
	g.setRule(from, edgeRule{to: to})
	return g
}

// AddConditionalEdges 条件边：route 返回的标签经 routes 映射到目标节点
func (g *StateGraph) AddConditionalEdges(from string, route RouteFunc, routes map[string]string) *StateGraph {
	if route == nil {
		g.fail("conditional edges from %q have no route function", from)
		return g
	}
	if len(routes) == 0 {
		g.fail("conditional edges from %q have an empty route table", from)
		return g
	}
	table := make(map[string]string, len(routes))
	for label, target := range routes {
		table[label] = target
	}
	g.setRule(from, edgeRule{route: route, routes: table})
	return g
}

// SetEntry 设置入口节点
func (g *StateGraph) SetEntry(name string) *StateGraph {
	g.entry = name
	return g
}

// Nodes 节点名（添加顺序）
func (g *StateGraph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

func (g *StateGraph) validate() error {
	errs := append([]error(nil), g.errs...)

	if len(g.nodes) == 0 {
		errs = append(errs, errors.New("graph has no nodes"))
	}
	switch {
	case g.entry == "":
		errs = append(errs, errors.New("entry node not set"))
	case g.nodes[g.entry] == nil:
		errs = append(errs, fmt.Errorf("entry node does not exist: %s", g.entry))
	}

	froms := make([]string, 0, len(g.edges))
	for from := range g.edges {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	known := func(target string) bool {
		return target == END || g.nodes[target] != nil
	}
	for _, from := range froms {
		if g.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("edge references non-existent source node: %s", from))
			continue
		}
		rule := g.edges[from]
		if !rule.conditional() {
			if !known(rule.to) {
				errs = append(errs, fmt.Errorf("edge %s -> %s references non-existent target node", from, rule.to))
			}
			continue
		}
		labels := make([]string, 0, len(rule.routes))
		for label := range rule.routes {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			if target := rule.routes[label]; !known(target) {
				errs = append(errs, fmt.Errorf("route %s[%s] -> %s references non-existent target node", from, label, target))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return types.NewError(types.ErrInvalidGraph, "graph validation failed").WithCause(errors.Join(errs...))
}

// Compile 校验图并生成编排器
func (g *StateGraph) Compile(registry *agent.Registry, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, types.NewError(types.ErrInvalidGraph, "agent registry is nil")
	}
	if err := g.validate(); err != nil {
		return nil, err
	}

	nodes := make(map[string]node, len(g.nodes))
	for name, n := range g.nodes {
		nodes[name] = *n
	}
	edges := make(map[string]edgeRule, len(g.edges))
	for from, rule := range g.edges {
		edges[from] = rule
	}
	return newOrchestrator(nodes, edges, g.entry, registry, opts...), nil
}
