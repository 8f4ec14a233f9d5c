package layout

import (
	"slices"
	"strings"

	"github.com/roach88/mdbgen/internal/mdb"
)

// dependencyGraph maps a top-level system (by qualified name) to the
// top-level systems its containers and commands inherit from or nest.
type dependencyGraph map[string][]string

// buildDependencyGraph collects cross-subsystem edges. Every top-level
// system is a node, including the root for nodes declared directly on
// it.
func buildDependencyGraph(tree *mdb.Tree) (dependencyGraph, map[string]mdb.SystemID) {
	graph := make(dependencyGraph)
	keys := make(map[string]mdb.SystemID)

	key := func(sys mdb.SystemID) string {
		return tree.System(tree.TopLevel(sys)).QualifiedName
	}
	addNode := func(sys mdb.SystemID) string {
		k := key(sys)
		if _, ok := graph[k]; !ok {
			graph[k] = []string{}
			keys[k] = tree.TopLevel(sys)
		}
		return k
	}
	addEdge := func(from, to mdb.SystemID) {
		f, t := addNode(from), addNode(to)
		if f != t {
			graph[f] = append(graph[f], t)
		}
	}

	addNode(tree.Root())
	for _, child := range tree.System(tree.Root()).Children {
		addNode(child)
	}
	for i := 1; i <= tree.NumContainers(); i++ {
		c := tree.Container(mdb.ContainerID(i))
		if base := tree.Container(c.Base); base != nil {
			addEdge(c.System, base.System)
		}
		for _, e := range c.Entries {
			if nested := tree.Container(e.Container); e.Kind == mdb.ContainerEntryKind && nested != nil {
				addEdge(c.System, nested.System)
			}
		}
	}
	for i := 1; i <= tree.NumCommands(); i++ {
		c := tree.Command(mdb.CommandID(i))
		if base := tree.Command(c.Base); base != nil {
			addEdge(c.System, base.System)
		}
	}

	for k, deps := range graph {
		slices.Sort(deps)
		graph[k] = slices.Compact(deps)
	}
	return graph, keys
}

// schedule groups the graph into levels of independent units. Systems
// that depend on each other form one unit. Every unit only depends on
// units of earlier levels.
func schedule(graph dependencyGraph) [][][]string {
	sccs := tarjanSCC(graph)

	component := make(map[string]int, len(graph))
	for i, scc := range sccs {
		for _, node := range scc {
			component[node] = i
		}
	}

	// Tarjan emits a component only after every component it reaches, so
	// dependencies always have their level computed first.
	levelOf := make([]int, len(sccs))
	depth := 0
	for i, scc := range sccs {
		for _, node := range scc {
			for _, dep := range graph[node] {
				if j := component[dep]; j != i {
					levelOf[i] = max(levelOf[i], levelOf[j]+1)
				}
			}
		}
		depth = max(depth, levelOf[i]+1)
	}

	levels := make([][][]string, depth)
	for i, scc := range sccs {
		members := slices.Clone(scc)
		slices.Sort(members)
		levels[levelOf[i]] = append(levels[levelOf[i]], members)
	}
	for _, level := range levels {
		slices.SortFunc(level, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	}
	return levels
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes and successors are visited in sorted order so the result is
// deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}
