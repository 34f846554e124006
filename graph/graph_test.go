package graph

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
)

// Helper to create a test graph:
//
//	<requirements>
//	├── requests==2.32.3
//	│   ├── idna==3.10
//	│   └── certifi==2024.8.30
//	└── httpx==0.27.0
//	    └── idna==3.10 (shared)
func createTestGraph() *Graph {
	b := NewBuilder()
	b.AddNode("requests", "2.32.3", "index", nil, &SelectionInfo{Strategy: StrategyNewest, Specifier: ">=2"})
	b.AddEdge("", "requests", "requests>=2")
	b.AddNode("httpx", "0.27.0", "index", nil, &SelectionInfo{Strategy: StrategyPinned, Specifier: "==0.27.0"})
	b.AddEdge("", "httpx", "httpx==0.27.0")
	b.AddNode("idna", "3.10", "index", nil, &SelectionInfo{Strategy: StrategyNewest, Specifier: "<4,>=2.5"})
	b.AddEdge("requests", "idna", "idna<4,>=2.5")
	b.AddNode("certifi", "2024.8.30", "mock", nil, &SelectionInfo{Strategy: StrategyPresent})
	b.AddEdge("requests", "certifi", "certifi>=2017.4.17")
	b.AddEdge("httpx", "idna", "idna")
	return b.Build()
}

func TestKey_String(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{Key{Name: "foo", Version: "1.0"}, "foo==1.0"},
		{Key{Name: "bar"}, "bar"},
		{Key{Name: "baz", Version: "2.0rc1"}, "baz==2.0rc1"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	g := createTestGraph()

	if g.Root.Name != RootName {
		t.Errorf("unexpected root: %v", g.Root)
	}
	// four packages plus the root
	if len(g.Nodes) != 5 {
		t.Errorf("expected 5 nodes, got %d", len(g.Nodes))
	}

	idna := g.Get("idna")
	if idna == nil {
		t.Fatal("idna not found")
	}
	if idna.Selection == nil || idna.Selection.SelectedVersion != "3.10" {
		t.Errorf("SelectedVersion not filled in: %+v", idna.Selection)
	}
	if len(idna.Requests) != 2 {
		t.Errorf("expected 2 requests for idna, got %d", len(idna.Requests))
	}
}

func TestGraph_Contains(t *testing.T) {
	g := createTestGraph()

	if !g.Contains("requests") {
		t.Error("expected graph to contain requests")
	}
	if g.Contains("urllib3") {
		t.Error("expected graph to not contain urllib3")
	}
}

func TestGraph_Packages(t *testing.T) {
	g := createTestGraph()

	var names []string
	for _, k := range g.Packages() {
		names = append(names, k.Name)
	}
	want := []string{"requests", "httpx", "idna", "certifi"}
	if !slices.Equal(names, want) {
		t.Errorf("Packages() = %v, want %v", names, want)
	}
}

func TestGraph_DirectDeps(t *testing.T) {
	g := createTestGraph()

	if got := g.DirectDeps(RootName); !slices.Equal(got, []string{"requests", "httpx"}) {
		t.Errorf("root deps = %v", got)
	}
	if got := g.DirectDeps("requests"); !slices.Equal(got, []string{"idna", "certifi"}) {
		t.Errorf("requests deps = %v", got)
	}
	if got := g.DirectDeps("idna"); len(got) != 0 {
		t.Errorf("expected idna to have no deps, got %v", got)
	}
	if got := g.DirectDeps("missing"); got != nil {
		t.Errorf("expected nil for unknown package, got %v", got)
	}
}

func TestGraph_DirectDependents(t *testing.T) {
	g := createTestGraph()

	if got := g.DirectDependents("idna"); !slices.Equal(got, []string{"requests", "httpx"}) {
		t.Errorf("idna dependents = %v", got)
	}
	if got := g.DirectDependents("requests"); !slices.Equal(got, []string{RootName}) {
		t.Errorf("requests dependents = %v", got)
	}
}

func TestGraph_TransitiveDeps(t *testing.T) {
	g := createTestGraph()

	got := g.TransitiveDeps(RootName)
	want := []string{"requests", "httpx", "idna", "certifi"}
	if !slices.Equal(got, want) {
		t.Errorf("TransitiveDeps(root) = %v, want %v", got, want)
	}
}

func TestGraph_TransitiveDependents(t *testing.T) {
	g := createTestGraph()

	got := g.TransitiveDependents("idna")
	want := []string{"requests", "httpx"}
	if !slices.Equal(got, want) {
		t.Errorf("TransitiveDependents(idna) = %v, want %v", got, want)
	}
}

func TestGraph_Path(t *testing.T) {
	g := createTestGraph()

	tests := []struct {
		from, to string
		want     []string
	}{
		{RootName, "idna", []string{RootName, "requests", "idna"}},
		{"httpx", "idna", []string{"httpx", "idna"}},
		{"idna", "idna", []string{"idna"}},
		{"idna", "requests", nil},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			if got := g.Path(tt.from, tt.to); !slices.Equal(got, tt.want) {
				t.Errorf("Path() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGraph_AllPaths(t *testing.T) {
	g := createTestGraph()

	paths := g.AllPaths(RootName, "idna")
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d: %v", len(paths), paths)
	}
}

func TestGraph_Stats(t *testing.T) {
	g := createTestGraph()
	stats := g.Stats()

	if stats.TotalPackages != 4 {
		t.Errorf("TotalPackages = %d, want 4", stats.TotalPackages)
	}
	if stats.DirectDependencies != 2 {
		t.Errorf("DirectDependencies = %d, want 2", stats.DirectDependencies)
	}
	if stats.TransitiveDependencies != 2 {
		t.Errorf("TransitiveDependencies = %d, want 2", stats.TransitiveDependencies)
	}
	if stats.MaxDepth != 2 {
		t.Errorf("MaxDepth = %d, want 2", stats.MaxDepth)
	}
	if stats.BySource["index"] != 3 || stats.BySource["mock"] != 1 {
		t.Errorf("BySource = %v", stats.BySource)
	}
}

func TestGraph_Leaves(t *testing.T) {
	g := createTestGraph()

	if got := g.Leaves(); !slices.Equal(got, []string{"idna", "certifi"}) {
		t.Errorf("Leaves() = %v", got)
	}
}

func TestGraph_Order(t *testing.T) {
	g := createTestGraph()

	got := g.Order()
	// httpx waits on idna, so idna goes first.
	want := []string{"idna", "httpx", "certifi", "requests"}
	if !slices.Equal(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
}

func TestGraph_Order_IndependentKeepDiscovery(t *testing.T) {
	b := NewBuilder()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		b.AddNode(name, "1.0", "index", nil, nil)
		b.AddEdge("", name, name)
	}
	g := b.Build()

	if got := g.Order(); !slices.Equal(got, []string{"zeta", "alpha", "mid"}) {
		t.Errorf("Order() = %v", got)
	}
}

func TestGraph_Order_Cycle(t *testing.T) {
	b := NewBuilder()
	b.AddNode("a", "1.0", "index", nil, nil)
	b.AddEdge("", "a", "a")
	b.AddNode("b", "1.0", "index", nil, nil)
	b.AddEdge("a", "b", "b")
	b.AddEdge("b", "a", "a")
	b.AddNode("c", "1.0", "index", nil, nil)
	b.AddEdge("b", "c", "c")
	g := b.Build()

	got := g.Order()
	// c is ready first; then a and b wait on each other and a, found
	// first, breaks the cycle.
	want := []string{"c", "a", "b"}
	if !slices.Equal(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
	if !g.HasCycles() {
		t.Error("expected a cycle")
	}
}

func TestGraph_Order_SelfLoop(t *testing.T) {
	b := NewBuilder()
	b.AddNode("a", "1.0", "index", nil, nil)
	b.AddEdge("", "a", "a")
	b.AddEdge("a", "a", "a[extra]")
	g := b.Build()

	if got := g.Order(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("Order() = %v", got)
	}
}

func TestGraph_FindCycles(t *testing.T) {
	g := createTestGraph()
	if g.HasCycles() {
		t.Errorf("unexpected cycles: %v", g.FindCycles())
	}
}

func TestGraph_Explain(t *testing.T) {
	g := createTestGraph()

	exp, err := g.Explain("idna")
	if err != nil {
		t.Fatalf("Explain() error: %v", err)
	}
	if exp.Package.Version != "3.10" {
		t.Errorf("Package = %v", exp.Package)
	}
	if exp.Selection.Strategy != StrategyNewest {
		t.Errorf("Strategy = %q", exp.Selection.Strategy)
	}
	if len(exp.DependencyChains) != 2 {
		t.Errorf("expected 2 chains, got %d", len(exp.DependencyChains))
	}

	if _, err := g.Explain("missing"); err == nil {
		t.Error("expected error for unknown package")
	}
	if _, err := g.Explain(RootName); err == nil {
		t.Error("expected error for the root")
	}
}

func TestGraph_WhyIncluded(t *testing.T) {
	g := createTestGraph()

	chains, err := g.WhyIncluded("certifi")
	if err != nil {
		t.Fatalf("WhyIncluded() error: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("expected 1 chain, got %d", len(chains))
	}
	want := "<requirements> -> requests==2.32.3 -> certifi==2024.8.30 (requires certifi>=2017.4.17)"
	if got := chains[0].String(); got != want {
		t.Errorf("chain = %q, want %q", got, want)
	}
}

func TestBuilder_PendingEdge(t *testing.T) {
	b := NewBuilder()
	b.AddNode("a", "1.0", "index", nil, nil)
	b.AddEdge("", "a", "a")
	b.AddEdge("a", "late", "late>=1")
	b.AddEdge("a", "never", "never")
	b.AddNode("late", "2.0", "index", nil, nil)
	g := b.Build()

	if got := g.DirectDeps("a"); !slices.Equal(got, []string{"late"}) {
		t.Errorf("deps = %v, want [late]", got)
	}
	late := g.Get("late")
	if len(late.Requests) != 1 || late.Requests[0].Requirement != "late>=1" {
		t.Errorf("Requests = %+v", late.Requests)
	}
}

func TestBuilder_AddExtras(t *testing.T) {
	b := NewBuilder()
	b.AddNode("a", "1.0", "index", []string{"socks"}, nil)
	b.AddExtras("a", "http2", "socks")
	g := b.Build()

	if got := g.Get("a").Extras; !slices.Equal(got, []string{"http2", "socks"}) {
		t.Errorf("Extras = %v", got)
	}
}

func TestGraph_ToJSON(t *testing.T) {
	g := createTestGraph()

	data, err := g.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error: %v", err)
	}
	var tree []TreeNode
	if err := json.Unmarshal(data, &tree); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(tree) != 2 || tree[0].Name != "requests" || tree[1].Name != "httpx" {
		t.Fatalf("unexpected top level: %+v", tree)
	}
	// idna is expanded under requests and only referenced under httpx.
	if len(tree[1].Dependencies) != 1 || tree[1].Dependencies[0].Name != "idna" {
		t.Errorf("httpx deps = %+v", tree[1].Dependencies)
	}
}

func TestGraph_ToDOT(t *testing.T) {
	g := createTestGraph()
	dot := g.ToDOT()

	for _, want := range []string{"digraph dependencies", `"requests" -> "idna"`, `"httpx" -> "idna"`, "style=dashed"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q", want)
		}
	}
}

func TestGraph_ToText(t *testing.T) {
	g := createTestGraph()
	text := g.ToText()

	for _, want := range []string{"Total packages: 4", "requests==2.32.3", "certifi==2024.8.30 [mock]"} {
		if !strings.Contains(text, want) {
			t.Errorf("text output missing %q:\n%s", want, text)
		}
	}
}

func TestGraph_ToExplainText(t *testing.T) {
	g := createTestGraph()

	text, err := g.ToExplainText("httpx")
	if err != nil {
		t.Fatalf("ToExplainText() error: %v", err)
	}
	for _, want := range []string{"Explanation for: httpx==0.27.0", "Strategy: pinned", "<requirements>: httpx==0.27.0"} {
		if !strings.Contains(text, want) {
			t.Errorf("explain output missing %q:\n%s", want, text)
		}
	}
}

func TestGraph_ToPackageList(t *testing.T) {
	g := createTestGraph()

	list := g.ToPackageList()
	if len(list) != 4 {
		t.Fatalf("expected 4 packages, got %d", len(list))
	}
	if list[0].Name != "idna" || !slices.Equal(list[0].RequiredBy, []string{"requests", "httpx"}) {
		t.Errorf("first entry = %+v", list[0])
	}
}

func TestGraph_EmptyGraph(t *testing.T) {
	g := NewBuilder().Build()

	if got := g.Order(); len(got) != 0 {
		t.Errorf("Order() = %v", got)
	}
	if stats := g.Stats(); stats.TotalPackages != 0 || stats.MaxDepth != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
	if !strings.Contains(g.ToText(), "Total packages: 0") {
		t.Error("empty text output missing summary")
	}
}
