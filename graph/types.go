package graph

import (
	"fmt"
	"strings"
)

// RootName is the name of the synthetic node whose dependencies are the
// top-level requirements.
const RootName = "<requirements>"

// Key identifies a resolved package.
type Key struct {
	Name    string
	Version string
}

// String returns "name==version", or just the name when the version is
// unknown.
func (k Key) String() string {
	if k.Version == "" {
		return k.Name
	}
	return k.Name + "==" + k.Version
}

// Graph represents a resolved installation plan as a dependency graph.
// It supports bidirectional traversal (dependencies and dependents)
// and provides query methods for explaining why a package is included.
//
// There is exactly one node per package name.
type Graph struct {
	// Root is the synthetic requirements node.
	Root Key

	// Nodes contains all nodes, root included, keyed by normalized name.
	Nodes map[string]*Node

	// discovery lists node names in the order the resolver found them.
	discovery []string
}

// Node represents a package in the dependency graph.
type Node struct {
	// Key identifies this package.
	Key Key

	// Source is where the package comes from: "index", "url", "path",
	// "mock", "installed" or "builtin".
	Source string

	// Extras are the activated extras.
	Extras []string

	// Dependencies are the direct dependencies, by name, in the order
	// they were declared.
	Dependencies []string

	// Dependents are the packages that directly depend on this one.
	Dependents []string

	// Requests records each edge into this node with the specifier it
	// carried.
	Requests []Request

	// Selection explains why this version was chosen.
	Selection *SelectionInfo

	// IsRoot is true for the synthetic requirements node.
	IsRoot bool

	discovered int
}

// Request is one incoming edge.
type Request struct {
	// From is the name of the requesting node (RootName for top-level
	// requirements).
	From string
	// Requirement is the requirement text as declared, e.g. "idna>=2.5".
	Requirement string
}

// SelectionInfo explains why a particular version was selected.
type SelectionInfo struct {
	// Strategy is how the version was selected.
	Strategy SelectionStrategy

	// SelectedVersion is the version that was selected.
	SelectedVersion string

	// Specifier is the accumulated specifier the version had to satisfy.
	Specifier string

	// Artifact is the chosen file name, empty for mock and installed
	// packages.
	Artifact string

	// DecidingFactor explains what determined the selection.
	DecidingFactor string
}

// SelectionStrategy indicates how a version was selected.
type SelectionStrategy string

const (
	// StrategyNewest means the newest matching release with a compatible
	// artifact was picked.
	StrategyNewest SelectionStrategy = "newest-compatible"

	// StrategyPinned means the requirement pinned an exact version.
	StrategyPinned SelectionStrategy = "pinned"

	// StrategyDirect means a URL or path named the artifact.
	StrategyDirect SelectionStrategy = "direct"

	// StrategyPresent means a mock or installed package already satisfied
	// the requirement.
	StrategyPresent SelectionStrategy = "already-satisfied"

	// StrategyRoot indicates the synthetic root (no selection needed).
	StrategyRoot SelectionStrategy = "root"
)

// Explanation provides a detailed explanation of why a package is in
// the plan at its version.
type Explanation struct {
	// Package is the package being explained.
	Package Key

	// Selection explains how the version was selected.
	Selection *SelectionInfo

	// Requests lists every edge that asked for the package.
	Requests []Request

	// DependencyChains shows all paths from the root to this package.
	DependencyChains []DependencyChain
}

// DependencyChain represents a path of dependencies from root to a package.
type DependencyChain struct {
	// Path is the sequence of packages from root to target.
	Path []Key

	// Requirement is the requirement declared on the last edge.
	Requirement string
}

// String returns a human-readable representation of the chain.
func (c DependencyChain) String() string {
	if len(c.Path) == 0 {
		return ""
	}
	parts := make([]string, len(c.Path))
	for i, k := range c.Path {
		parts[i] = k.String()
	}
	result := strings.Join(parts, " -> ")
	if c.Requirement != "" {
		result += fmt.Sprintf(" (requires %s)", c.Requirement)
	}
	return result
}

// Stats provides statistics about the graph.
type Stats struct {
	// TotalPackages excludes the root.
	TotalPackages int

	// DirectDependencies is the number of top-level requirements.
	DirectDependencies int

	// TransitiveDependencies is the number of packages pulled in only
	// through other packages.
	TransitiveDependencies int

	// MaxDepth is the maximum depth of the dependency tree.
	MaxDepth int

	// BySource counts packages per source.
	BySource map[string]int
}
