package graph

import (
	"fmt"
	"slices"
)

// Get returns the node for a package name, or nil if not found.
func (g *Graph) Get(name string) *Node {
	return g.Nodes[name]
}

// Contains returns true if the graph contains the given package.
func (g *Graph) Contains(name string) bool {
	_, ok := g.Nodes[name]
	return ok
}

// Packages returns all package keys in discovery order, root excluded.
func (g *Graph) Packages() []Key {
	out := make([]Key, 0, len(g.discovery))
	for _, name := range g.discovery {
		out = append(out, g.Nodes[name].Key)
	}
	return out
}

// DirectDeps returns the direct dependencies of a package.
func (g *Graph) DirectDeps(name string) []string {
	if node := g.Nodes[name]; node != nil {
		return node.Dependencies
	}
	return nil
}

// DirectDependents returns packages that directly depend on the given one.
func (g *Graph) DirectDependents(name string) []string {
	if node := g.Nodes[name]; node != nil {
		return node.Dependents
	}
	return nil
}

// TransitiveDeps returns all transitive dependencies of a package.
// The result is in breadth-first order.
func (g *Graph) TransitiveDeps(name string) []string {
	return g.bfs(name, func(n *Node) []string { return n.Dependencies })
}

// TransitiveDependents returns all packages that transitively depend on
// the given one, closest first. The root is not included.
func (g *Graph) TransitiveDependents(name string) []string {
	out := g.bfs(name, func(n *Node) []string { return n.Dependents })
	return slices.DeleteFunc(out, func(s string) bool { return s == RootName })
}

func (g *Graph) bfs(start string, next func(*Node) []string) []string {
	result := make([]string, 0)
	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node := g.Nodes[current]
		if node == nil {
			continue
		}
		for _, n := range next(node) {
			if !visited[n] {
				visited[n] = true
				result = append(result, n)
				queue = append(queue, n)
			}
		}
	}
	return result
}

// Path finds the shortest dependency path from one package to another.
// Returns nil if no path exists.
func (g *Graph) Path(from, to string) []string {
	if from == to {
		return []string{from}
	}

	type queueItem struct {
		name string
		path []string
	}

	visited := map[string]bool{from: true}
	queue := []queueItem{{name: from, path: []string{from}}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node := g.Nodes[current.name]
		if node == nil {
			continue
		}
		for _, dep := range node.Dependencies {
			if dep == to {
				return append(slices.Clone(current.path), dep)
			}
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, queueItem{name: dep, path: append(slices.Clone(current.path), dep)})
			}
		}
	}
	return nil
}

// AllPaths finds all dependency paths from one package to another.
// This can be expensive for large graphs with many paths.
func (g *Graph) AllPaths(from, to string) [][]string {
	var result [][]string
	g.findAllPaths(from, to, []string{from}, make(map[string]bool), &result)
	return result
}

func (g *Graph) findAllPaths(current, target string, path []string, visited map[string]bool, result *[][]string) {
	if current == target {
		*result = append(*result, slices.Clone(path))
		return
	}

	visited[current] = true
	defer func() { visited[current] = false }()

	node := g.Nodes[current]
	if node == nil {
		return
	}
	for _, dep := range node.Dependencies {
		if !visited[dep] {
			g.findAllPaths(dep, target, append(path, dep), visited, result)
		}
	}
}

// Explain returns a detailed explanation of why a package is in the plan.
func (g *Graph) Explain(name string) (*Explanation, error) {
	node := g.Nodes[name]
	if node == nil || node.IsRoot {
		return nil, fmt.Errorf("package %q not found in graph", name)
	}

	chains, err := g.WhyIncluded(name)
	if err != nil {
		return nil, err
	}
	return &Explanation{
		Package:          node.Key,
		Selection:        node.Selection,
		Requests:         slices.Clone(node.Requests),
		DependencyChains: chains,
	}, nil
}

// WhyIncluded returns all dependency chains from the top-level
// requirements to a package.
func (g *Graph) WhyIncluded(name string) ([]DependencyChain, error) {
	node := g.Nodes[name]
	if node == nil || node.IsRoot {
		return nil, fmt.Errorf("package %q not found in graph", name)
	}

	paths := g.AllPaths(RootName, name)
	chains := make([]DependencyChain, len(paths))
	for i, path := range paths {
		keys := make([]Key, len(path))
		for j, p := range path {
			keys[j] = g.Nodes[p].Key
		}
		chains[i] = DependencyChain{Path: keys}
		if len(path) >= 2 {
			parent := path[len(path)-2]
			for _, r := range node.Requests {
				if r.From == parent {
					chains[i].Requirement = r.Requirement
					break
				}
			}
		}
	}
	return chains, nil
}

// Stats returns statistics about the graph.
func (g *Graph) Stats() Stats {
	stats := Stats{
		TotalPackages: len(g.discovery),
		BySource:      make(map[string]int),
	}
	if root := g.Nodes[RootName]; root != nil {
		stats.DirectDependencies = len(root.Dependencies)
	}
	stats.TransitiveDependencies = max(stats.TotalPackages-stats.DirectDependencies, 0)
	for _, name := range g.discovery {
		stats.BySource[g.Nodes[name].Source]++
	}
	stats.MaxDepth = g.calculateMaxDepth()
	return stats
}

func (g *Graph) calculateMaxDepth() int {
	depths := make(map[string]int)
	onPath := make(map[string]bool)
	var maxDepth int

	var dfs func(name string, depth int)
	dfs = func(name string, depth int) {
		// A node already on the current path closes a cycle.
		if onPath[name] {
			return
		}
		if existing, ok := depths[name]; ok && existing >= depth {
			return
		}
		depths[name] = depth
		maxDepth = max(maxDepth, depth)

		node := g.Nodes[name]
		if node == nil {
			return
		}
		onPath[name] = true
		for _, dep := range node.Dependencies {
			dfs(dep, depth+1)
		}
		delete(onPath, name)
	}

	dfs(RootName, 0)
	return maxDepth
}

// Leaves returns all packages with no dependencies, in discovery order.
func (g *Graph) Leaves() []string {
	var leaves []string
	for _, name := range g.discovery {
		if len(g.Nodes[name].Dependencies) == 0 {
			leaves = append(leaves, name)
		}
	}
	return leaves
}

// HasCycles returns true if the graph contains cycles.
func (g *Graph) HasCycles() bool {
	return len(g.FindCycles()) > 0
}

// FindCycles returns the cycles in the graph, walking packages in
// discovery order so the result is deterministic.
func (g *Graph) FindCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	var findCycles func(name string)
	findCycles = func(name string) {
		visited[name] = true
		recStack[name] = true
		path = append(path, name)

		if node := g.Nodes[name]; node != nil {
			for _, dep := range node.Dependencies {
				if !visited[dep] {
					findCycles(dep)
				} else if recStack[dep] {
					if start := slices.Index(path, dep); start >= 0 {
						cycles = append(cycles, slices.Clone(path[start:]))
					}
				}
			}
		}

		path = path[:len(path)-1]
		recStack[name] = false
	}

	for _, name := range g.names() {
		if !visited[name] {
			findCycles(name)
		}
	}
	return cycles
}
