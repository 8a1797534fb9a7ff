package dsl

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Andrew821667/ai-seo-architects/workflow"
)

// 内置路由器名称
const (
	RouterTaskType = "task_type"
	RouterScore    = "score"
)

// Definition 解析结果
type Definition struct {
	Name        string
	Description string
	Graph       *workflow.StateGraph
	// MaxSteps 为 0 时 Options 不设置步数上限
	MaxSteps int
}

// Options 由定义派生的编排器选项
func (d *Definition) Options() []workflow.Option {
	if d.MaxSteps > 0 {
		return []workflow.Option{workflow.WithMaxSteps(d.MaxSteps)}
	}
	return nil
}

// Parser DSL 解析器
type Parser struct {
	routers map[string]workflow.RouteFunc
}

// NewParser 创建带内置路由器的解析器
func NewParser() *Parser {
	return &Parser{
		routers: map[string]workflow.RouteFunc{
			RouterTaskType: workflow.TaskTypeRouter,
			RouterScore:    workflow.ScoreRouter,
		},
	}
}

// RegisterRouter 注册命名路由器，同名覆盖
func (p *Parser) RegisterRouter(name string, fn workflow.RouteFunc) {
	p.routers[name] = fn
}

// ParseFile 从文件解析 DSL
func (p *Parser) ParseFile(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read DSL file: %w", err)
	}
	return p.Parse(data)
}

// Parse 从 YAML 字节解析 DSL
func (p *Parser) Parse(data []byte) (*Definition, error) {
	var dsl GraphDSL
	if err := yaml.Unmarshal(data, &dsl); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := p.validate(&dsl); err != nil {
		return nil, fmt.Errorf("validate DSL: %w", err)
	}
	return &Definition{
		Name:        dsl.Name,
		Description: dsl.Description,
		Graph:       p.buildGraph(&dsl),
		MaxSteps:    dsl.MaxSteps,
	}, nil
}

func (p *Parser) validate(dsl *GraphDSL) error {
	names := make([]string, 0, len(p.routers))
	for name := range p.routers {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := NewValidator(names...).Validate(dsl)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return errors.New("validation errors: " + strings.Join(msgs, "; "))
	}
	return nil
}

func (p *Parser) buildGraph(dsl *GraphDSL) *workflow.StateGraph {
	g := workflow.NewStateGraph()
	for _, n := range dsl.Nodes {
		var opts []workflow.NodeOption
		if n.Level != "" {
			opts = append(opts, workflow.WithLevel(n.Level))
		}
		g.AddNode(n.Name, n.Agent, opts...)
	}
	for _, n := range dsl.Nodes {
		switch {
		case n.Next != "":
			g.AddEdge(n.Name, target(n.Next))
		case n.Router != "":
			routes := make(map[string]string, len(n.Routes))
			for label, t := range n.Routes {
				routes[label] = target(t)
			}
			g.AddConditionalEdges(n.Name, p.routers[n.Router], routes)
		}
	}
	return g.SetEntry(dsl.Entry)
}

func target(name string) string {
	if name == EndTarget {
		return workflow.END
	}
	return name
}
