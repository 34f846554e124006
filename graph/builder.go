package graph

import "slices"

// Builder constructs a Graph while a resolution runs. Nodes are recorded
// in discovery order, which Order uses to break ties.
type Builder struct {
	g       *Graph
	pending []pendingRequest
}

// NewBuilder creates a builder holding only the root node.
func NewBuilder() *Builder {
	root := &Node{
		Key:       Key{Name: RootName},
		IsRoot:    true,
		Selection: &SelectionInfo{Strategy: StrategyRoot},
	}
	return &Builder{g: &Graph{
		Root:  root.Key,
		Nodes: map[string]*Node{RootName: root},
	}}
}

// AddNode records a resolved package. Adding a name twice updates the
// existing node and keeps its discovery position.
func (b *Builder) AddNode(name, version, source string, extras []string, sel *SelectionInfo) {
	if n, ok := b.g.Nodes[name]; ok {
		n.Key.Version = version
		n.Source = source
		n.Extras = slices.Clone(extras)
		if sel != nil {
			n.Selection = sel
		}
		return
	}
	if sel != nil && sel.SelectedVersion == "" {
		sel.SelectedVersion = version
	}
	b.g.Nodes[name] = &Node{
		Key:        Key{Name: name, Version: version},
		Source:     source,
		Extras:     slices.Clone(extras),
		Selection:  sel,
		discovered: len(b.g.discovery),
	}
	b.g.discovery = append(b.g.discovery, name)
}

// AddExtras merges newly activated extras into a node.
func (b *Builder) AddExtras(name string, extras ...string) {
	n, ok := b.g.Nodes[name]
	if !ok {
		return
	}
	for _, e := range extras {
		if !slices.Contains(n.Extras, e) {
			n.Extras = append(n.Extras, e)
		}
	}
	slices.Sort(n.Extras)
}

// AddEdge records that from requires to. An empty from means a
// top-level requirement. Edges to unknown nodes are kept and resolved
// when Build runs; duplicate edges only add a request.
func (b *Builder) AddEdge(from, to, requirement string) {
	if from == "" {
		from = RootName
	}
	src, ok := b.g.Nodes[from]
	if !ok {
		return
	}
	if !slices.Contains(src.Dependencies, to) {
		src.Dependencies = append(src.Dependencies, to)
	}
	if dst, ok := b.g.Nodes[to]; ok {
		dst.Requests = append(dst.Requests, Request{From: from, Requirement: requirement})
		return
	}
	b.pending = append(b.pending, pendingRequest{to: to, req: Request{From: from, Requirement: requirement}})
}

type pendingRequest struct {
	to  string
	req Request
}

// Build finalizes reverse edges and returns the graph. Dependencies on
// names that never became nodes (failed or filtered) are dropped.
func (b *Builder) Build() *Graph {
	g := b.g
	for _, p := range b.pending {
		if n, ok := g.Nodes[p.to]; ok {
			n.Requests = append(n.Requests, p.req)
		}
	}
	b.pending = nil

	for _, n := range g.Nodes {
		n.Dependencies = slices.DeleteFunc(n.Dependencies, func(dep string) bool {
			_, ok := g.Nodes[dep]
			return !ok
		})
		n.Dependents = n.Dependents[:0]
	}
	for _, name := range g.names() {
		for _, dep := range g.Nodes[name].Dependencies {
			d := g.Nodes[dep]
			if !slices.Contains(d.Dependents, name) {
				d.Dependents = append(d.Dependents, name)
			}
		}
	}
	return g
}

// names returns the root followed by all packages in discovery order.
func (g *Graph) names() []string {
	return append([]string{RootName}, g.discovery...)
}
