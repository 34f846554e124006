package pyresolve

import (
	"fmt"

	"github.com/albertocavalcante/go-pyresolve/graph"
	"github.com/albertocavalcante/go-pyresolve/index"
	"github.com/albertocavalcante/go-pyresolve/requirement"
)

// Source says where a resolved package comes from.
type Source string

const (
	// SourceIndex means the package was selected from an index.
	SourceIndex Source = "index"
	// SourceURL means a requirement named a remote artifact directly.
	SourceURL Source = "url"
	// SourcePath means a requirement named a local artifact directly.
	SourcePath Source = "path"
	// SourceMock means the mock registry supplied the package.
	SourceMock Source = "mock"
	// SourceInstalled means an installed version already satisfied every
	// requirement.
	SourceInstalled Source = "installed"
	// SourceBuiltin means the package ships with the runtime.
	SourceBuiltin Source = "builtin"
)

// Edge is one requirement that pulled a package into the plan.
type Edge struct {
	// From is the requesting package, empty for a top-level requirement
	// and "<constraint>" for a constraint.
	From string `json:"from,omitempty"`

	// Requirement is the requirement text as declared.
	Requirement string `json:"requirement"`
}

// String returns "from -> requirement", or just the requirement for
// top-level edges.
func (e Edge) String() string {
	if e.From == "" {
		return e.Requirement
	}
	return fmt.Sprintf("%s -> %s", e.From, e.Requirement)
}

// constraintOrigin is the From of edges contributed by constraints.
const constraintOrigin = "<constraint>"

// ResolvedNode is one package of a plan.
type ResolvedNode struct {
	// Name is the normalized package name.
	Name string `json:"name"`

	// Version is the chosen version.
	Version string `json:"version"`

	// Artifact is the chosen file. It is nil for mock and installed
	// packages.
	Artifact *index.Artifact `json:"artifact,omitempty"`

	// Source says where the package comes from.
	Source Source `json:"source"`

	// Index names the provider for index and builtin packages.
	Index string `json:"index,omitempty"`

	// Extras are the activated extras, sorted.
	Extras []string `json:"extras,omitempty"`

	// RequiredBy lists the edges that pulled the package in.
	RequiredBy []Edge `json:"required_by"`

	// Dependencies are the names of the resolved direct dependencies.
	Dependencies []string `json:"dependencies,omitempty"`

	// Yanked is true when an exact pin selected a yanked release.
	Yanked bool `json:"yanked,omitempty"`
}

// String returns "name==version".
func (n *ResolvedNode) String() string {
	return n.Name + "==" + n.Version
}

// NeedsInstall reports whether the installer has to fetch the package.
func (n *ResolvedNode) NeedsInstall() bool {
	return n.Source != SourceMock && n.Source != SourceInstalled
}

// Plan is the ordered result of a resolution. Every dependency comes
// before its dependents, and each name appears once.
type Plan struct {
	// Nodes is the install order.
	Nodes []*ResolvedNode `json:"nodes"`

	// Warnings contains non-fatal issues, such as yanked releases chosen
	// by an exact pin or unknown extras.
	Warnings []string `json:"warnings,omitempty"`

	// Summary provides aggregate statistics about the plan.
	Summary Summary `json:"summary"`

	graph *graph.Graph
}

// Summary provides aggregate statistics about a plan.
type Summary struct {
	// Total is the number of packages in the plan.
	Total int `json:"total"`

	// ToInstall counts packages that must be fetched.
	ToInstall int `json:"to_install"`

	// BySource counts packages per source.
	BySource map[Source]int `json:"by_source"`
}

// Get returns the node for a package name in any spelling, or nil.
func (p *Plan) Get(name string) *ResolvedNode {
	n := requirement.Normalize(name)
	for _, node := range p.Nodes {
		if node.Name == n {
			return node
		}
	}
	return nil
}

// Names returns the package names in plan order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		out[i] = n.Name
	}
	return out
}

// ToInstall returns the nodes the installer has to fetch, in plan order.
func (p *Plan) ToInstall() []*ResolvedNode {
	var out []*ResolvedNode
	for _, n := range p.Nodes {
		if n.NeedsInstall() {
			out = append(out, n)
		}
	}
	return out
}

// Graph returns the dependency graph behind the plan, for explain and
// why queries.
func (p *Plan) Graph() *graph.Graph {
	return p.graph
}

func (p *Plan) summarize() {
	p.Summary = Summary{Total: len(p.Nodes), BySource: make(map[Source]int)}
	for _, n := range p.Nodes {
		p.Summary.BySource[n.Source]++
		if n.NeedsInstall() {
			p.Summary.ToInstall++
		}
	}
}

// ProgressEventType identifies a stage of a resolution.
type ProgressEventType string

const (
	// ProgressResolveStart is emitted once before the first requirement.
	ProgressResolveStart ProgressEventType = "resolve_start"
	// ProgressCollecting is emitted before querying the indexes for a
	// package.
	ProgressCollecting ProgressEventType = "collecting"
	// ProgressSelected is emitted when a version joins the plan.
	ProgressSelected ProgressEventType = "selected"
	// ProgressFailed is emitted for each failure.
	ProgressFailed ProgressEventType = "failed"
	// ProgressResolveEnd is emitted once after the walk finishes.
	ProgressResolveEnd ProgressEventType = "resolve_end"
)

// ProgressEvent reports resolution progress to a WithProgress callback.
type ProgressEvent struct {
	Type    ProgressEventType
	Name    string
	Version string
	Source  Source
	Err     error
}
