package graph

// Order returns the package names in installation order: every
// dependency before its dependents, ties broken by discovery order.
//
// Cycles are broken by emitting the earliest-discovered package still
// waiting, then continuing normally.
func (g *Graph) Order() []string {
	remaining := make(map[string]int, len(g.discovery)) // unmet dependency count
	for _, name := range g.discovery {
		n := 0
		for _, dep := range g.Nodes[name].Dependencies {
			if dep != name && !g.Nodes[dep].IsRoot {
				n++
			}
		}
		remaining[name] = n
	}

	order := make([]string, 0, len(g.discovery))
	emitted := make(map[string]bool, len(g.discovery))

	emit := func(name string) {
		emitted[name] = true
		order = append(order, name)
		for _, dependent := range g.Nodes[name].Dependents {
			if _, ok := remaining[dependent]; ok && dependent != name {
				remaining[dependent]--
			}
		}
	}

	for len(order) < len(g.discovery) {
		next := ""
		for _, name := range g.discovery {
			if !emitted[name] && remaining[name] <= 0 {
				next = name
				break
			}
		}
		if next == "" {
			// Every waiting package is on a cycle or behind one.
			for _, name := range g.discovery {
				if !emitted[name] {
					next = name
					break
				}
			}
		}
		emit(next)
	}
	return order
}
