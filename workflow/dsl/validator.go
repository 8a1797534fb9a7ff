package dsl

import (
	"fmt"
	"sort"
)

// Validator DSL 验证器
type Validator struct {
	routers map[string]bool
}

// NewValidator 创建验证器，routers 为可用的路由器名称
func NewValidator(routers ...string) *Validator {
	v := &Validator{routers: make(map[string]bool, len(routers))}
	for _, r := range routers {
		v.routers[r] = true
	}
	return v
}

// Validate 验证 DSL 定义，返回全部错误
func (v *Validator) Validate(dsl *GraphDSL) []error {
	var errs []error

	if dsl.Version == "" {
		errs = append(errs, fmt.Errorf("version is required"))
	} else if dsl.Version != SupportedVersion {
		errs = append(errs, fmt.Errorf("unsupported version %q", dsl.Version))
	}
	if dsl.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if dsl.Entry == "" {
		errs = append(errs, fmt.Errorf("entry is required"))
	}
	if dsl.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("max_steps must be >= 0"))
	}
	if len(dsl.Nodes) == 0 {
		errs = append(errs, fmt.Errorf("nodes must have at least one node"))
	}

	names := make(map[string]bool)
	for _, node := range dsl.Nodes {
		if node.Name == "" {
			errs = append(errs, fmt.Errorf("node name is required"))
			continue
		}
		if node.Name == EndTarget {
			errs = append(errs, fmt.Errorf("node name %q is reserved", EndTarget))
			continue
		}
		if names[node.Name] {
			errs = append(errs, fmt.Errorf("duplicate node name: %s", node.Name))
		}
		names[node.Name] = true
	}

	if dsl.Entry != "" && !names[dsl.Entry] {
		errs = append(errs, fmt.Errorf("entry node %q does not exist", dsl.Entry))
	}

	for i := range dsl.Nodes {
		errs = append(errs, v.validateNode(&dsl.Nodes[i], names)...)
	}
	return errs
}

func (v *Validator) validateNode(node *NodeDef, names map[string]bool) []error {
	var errs []error
	target := func(t string) bool { return t == EndTarget || names[t] }

	switch {
	case node.Next != "" && node.Router != "":
		errs = append(errs, fmt.Errorf("node %s: next and router are mutually exclusive", node.Name))
	case node.Next != "":
		if !target(node.Next) {
			errs = append(errs, fmt.Errorf("node %s: next %q does not exist", node.Name, node.Next))
		}
		if len(node.Routes) > 0 {
			errs = append(errs, fmt.Errorf("node %s: routes require a router", node.Name))
		}
	case node.Router != "":
		if !v.routers[node.Router] {
			errs = append(errs, fmt.Errorf("node %s: unknown router %q", node.Name, node.Router))
		}
		if len(node.Routes) == 0 {
			errs = append(errs, fmt.Errorf("node %s: router %q has no routes", node.Name, node.Router))
		}
		labels := make([]string, 0, len(node.Routes))
		for label := range node.Routes {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			if t := node.Routes[label]; !target(t) {
				errs = append(errs, fmt.Errorf("node %s: route %q -> %q does not exist", node.Name, label, t))
			}
		}
	case len(node.Routes) > 0:
		errs = append(errs, fmt.Errorf("node %s: routes require a router", node.Name))
	}
	return errs
}
