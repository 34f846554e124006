package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const separatorWidth = 60 // Width of separator lines in text output

// TreeNode is one entry of the JSON tree output.
type TreeNode struct {
	Name         string     `json:"name"`
	Version      string     `json:"version,omitempty"`
	Source       string     `json:"source,omitempty"`
	Extras       []string   `json:"extras,omitempty"`
	Dependencies []TreeNode `json:"dependencies,omitempty"`
	// Unexpanded marks a package whose subtree was already printed.
	Unexpanded bool `json:"unexpanded,omitempty"`
	// Cycle marks an edge back to a package on the current path.
	Cycle bool `json:"cycle,omitempty"`
}

// ToJSON outputs the graph as a dependency tree rooted at the top-level
// requirements.
func (g *Graph) ToJSON() ([]byte, error) {
	root := g.Nodes[RootName]
	if root == nil {
		return json.Marshal([]TreeNode{})
	}
	expanded := make(map[string]bool)
	onPath := map[string]bool{RootName: true}
	return json.MarshalIndent(g.buildTree(root, expanded, onPath), "", "  ")
}

func (g *Graph) buildTree(node *Node, expanded, onPath map[string]bool) []TreeNode {
	deps := make([]TreeNode, 0, len(node.Dependencies))
	for _, name := range node.Dependencies {
		dep := g.Nodes[name]
		t := TreeNode{Name: name, Version: dep.Key.Version, Source: dep.Source, Extras: dep.Extras}
		switch {
		case onPath[name]:
			t.Cycle = true
		case expanded[name]:
			t.Unexpanded = len(dep.Dependencies) > 0
		default:
			expanded[name] = true
			onPath[name] = true
			t.Dependencies = g.buildTree(dep, expanded, onPath)
			delete(onPath, name)
		}
		deps = append(deps, t)
	}
	return deps
}

// ToDOT outputs the graph in Graphviz DOT format.
func (g *Graph) ToDOT() string {
	var buf bytes.Buffer

	buf.WriteString("digraph dependencies {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box];\n\n")

	for _, name := range g.names() {
		node := g.Nodes[name]
		label := name
		if node.Key.Version != "" {
			label = fmt.Sprintf("%s\\n%s", name, node.Key.Version)
		}
		attrs := fmt.Sprintf(`label="%s"`, label) //nolint:gocritic // DOT format requires this quote style
		switch {
		case node.IsRoot:
			attrs += ", style=bold"
		case node.Source == "mock" || node.Source == "installed":
			attrs += ", style=dashed"
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", name, attrs)
	}

	buf.WriteString("\n")

	for _, name := range g.names() {
		for _, dep := range g.Nodes[name].Dependencies {
			fmt.Fprintf(&buf, "  %q -> %q;\n", name, dep)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ToText outputs a human-readable text representation of the graph.
func (g *Graph) ToText() string {
	var buf bytes.Buffer

	buf.WriteString("Dependency Graph\n")
	buf.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")

	stats := g.Stats()
	fmt.Fprintf(&buf, "Total packages: %d\n", stats.TotalPackages)
	fmt.Fprintf(&buf, "Direct dependencies: %d\n", stats.DirectDependencies)
	fmt.Fprintf(&buf, "Transitive dependencies: %d\n", stats.TransitiveDependencies)
	fmt.Fprintf(&buf, "Max depth: %d\n", stats.MaxDepth)
	buf.WriteString("\n")

	buf.WriteString("Dependency Tree:\n")
	visited := make(map[string]bool)
	root := g.Nodes[RootName]
	for i, dep := range root.Dependencies {
		g.printTree(&buf, dep, "", i == len(root.Dependencies)-1, visited)
	}
	return buf.String()
}

func (g *Graph) printTree(buf *bytes.Buffer, name, prefix string, isLast bool, visited map[string]bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	node := g.Nodes[name]
	buf.WriteString(prefix + connector + node.Key.String())
	if node.Source != "" && node.Source != "index" {
		fmt.Fprintf(buf, " [%s]", node.Source)
	}

	if visited[name] {
		buf.WriteString(" (circular)\n")
		return
	}
	buf.WriteString("\n")

	visited[name] = true
	defer func() { visited[name] = false }()

	childPrefix := prefix + "│   "
	if isLast {
		childPrefix = prefix + "    "
	}
	for i, dep := range node.Dependencies {
		g.printTree(buf, dep, childPrefix, i == len(node.Dependencies)-1, visited)
	}
}

// ToExplainText outputs a human-readable explanation for one package.
func (g *Graph) ToExplainText(name string) (string, error) {
	explanation, err := g.Explain(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Explanation for: %s\n", explanation.Package.String())
	buf.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")

	if sel := explanation.Selection; sel != nil {
		buf.WriteString("Version Selection:\n")
		fmt.Fprintf(&buf, "  Selected version: %s\n", sel.SelectedVersion)
		fmt.Fprintf(&buf, "  Strategy: %s\n", sel.Strategy)
		if sel.Specifier != "" {
			fmt.Fprintf(&buf, "  Accumulated specifier: %s\n", sel.Specifier)
		}
		if sel.Artifact != "" {
			fmt.Fprintf(&buf, "  Artifact: %s\n", sel.Artifact)
		}
		if sel.DecidingFactor != "" {
			fmt.Fprintf(&buf, "  Deciding factor: %s\n", sel.DecidingFactor)
		}
	}

	if len(explanation.Requests) > 0 {
		buf.WriteString("\nRequested by:\n")
		for _, r := range explanation.Requests {
			fmt.Fprintf(&buf, "  %s: %s\n", r.From, r.Requirement)
		}
	}

	if len(explanation.DependencyChains) > 0 {
		buf.WriteString("\nDependency Chains:\n")
		for i, chain := range explanation.DependencyChains {
			fmt.Fprintf(&buf, "  %d. %s\n", i+1, chain.String())
		}
	}

	return buf.String(), nil
}

// PackageInfo represents a package in the flat list output.
type PackageInfo struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Source     string   `json:"source,omitempty"`
	RequiredBy []string `json:"required_by,omitempty"`
}

// ToPackageList outputs the packages in installation order.
func (g *Graph) ToPackageList() []PackageInfo {
	order := g.Order()
	out := make([]PackageInfo, 0, len(order))
	for _, name := range order {
		node := g.Nodes[name]
		out = append(out, PackageInfo{
			Name:       name,
			Version:    node.Key.Version,
			Source:     node.Source,
			RequiredBy: append([]string(nil), node.Dependents...),
		})
	}
	return out
}
