// Package graph provides the dependency graph of a resolved installation
// plan and query capabilities over it.
//
// It answers the questions an installer user asks after resolution:
//
//   - In which order must the packages be installed?
//   - Why is this package in the plan, and who asked for it?
//   - Which packages depend, directly or transitively, on this one?
//
// # Building a Graph
//
// The resolver records nodes and edges as it discovers them:
//
//	b := graph.NewBuilder()
//	b.AddNode("requests", "2.32.3", "index", nil, nil)
//	b.AddEdge("", "requests", "requests>=2")
//	b.AddNode("idna", "3.10", "index", nil, nil)
//	b.AddEdge("requests", "idna", "idna<4,>=2.5")
//	g := b.Build()
//
// An empty "from" marks a top-level requirement; those hang off the
// synthetic RootName node.
//
// # Ordering
//
// Order returns dependencies before dependents. Among packages that are
// ready at the same time, the one discovered first comes first, so
// independent subgraphs keep the order in which they were requested.
// Cycles are broken at the earliest-discovered package.
//
// # Output Formats
//
//	jsonBytes, _ := g.ToJSON()        // dependency tree
//	dot := g.ToDOT()                  // Graphviz
//	text := g.ToText()                // tree with summary
//	why, _ := g.ToExplainText("idna") // explanation for one package
package graph
