// Package depgraph tracks which source files depend on which others, so a
// change to one file can invalidate everything built from it. Typical edges:
// a page depends on its layout, a layout on the partials it includes.
package depgraph

import (
	"sort"

	"git.home.luguber.info/inful/sitewright/internal/util/sets"
)

// Graph holds forward and reverse adjacency for file dependencies.
// Both views are updated together and stay mutually inverse.
//
// The graph is owned by the build loop and mutated only between builds,
// so it carries no locking.
type Graph struct {
	// dependenciesOf[x] = the files x depends on.
	dependenciesOf map[string]sets.Set[string]
	// dependentsOf[x] = the files that depend on x.
	dependentsOf map[string]sets.Set[string]
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		dependenciesOf: make(map[string]sets.Set[string]),
		dependentsOf:   make(map[string]sets.Set[string]),
	}
}

// AddDependency records that dependent depends on dependency.
// Adding the same edge twice is a no-op.
func (g *Graph) AddDependency(dependent, dependency string) {
	if dependent == "" || dependency == "" {
		return
	}
	if g.dependenciesOf[dependent] == nil {
		g.dependenciesOf[dependent] = sets.New[string]()
	}
	g.dependenciesOf[dependent].Add(dependency)

	if g.dependentsOf[dependency] == nil {
		g.dependentsOf[dependency] = sets.New[string]()
	}
	g.dependentsOf[dependency].Add(dependent)
}

// ClearNode drops everything node depends on, removing node from the
// reverse set of each former dependency. Edges pointing at node survive:
// they belong to the files that declared them and are cleared when those
// files are re-scanned.
func (g *Graph) ClearNode(node string) {
	deps := g.dependenciesOf[node]
	for dep := range deps {
		if rev := g.dependentsOf[dep]; rev != nil {
			rev.Delete(node)
			if rev.Len() == 0 {
				delete(g.dependentsOf, dep)
			}
		}
	}
	delete(g.dependenciesOf, node)
}

// Dependencies returns the files node directly depends on, sorted.
func (g *Graph) Dependencies(node string) []string {
	return sorted(g.dependenciesOf[node])
}

// Dependents returns the files that directly depend on node, sorted.
func (g *Graph) Dependents(node string) []string {
	return sorted(g.dependentsOf[node])
}

// AllDependents returns every file that transitively depends on node,
// sorted. Each file appears once; cycles are tolerated and node itself is
// not included.
func (g *Graph) AllDependents(node string) []string {
	visited := sets.New(node)
	queue := []string{node}
	var out []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for dep := range g.dependentsOf[current] {
			if visited.Has(dep) {
				continue
			}
			visited.Add(dep)
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}

	sort.Strings(out)
	return out
}

// Nodes returns every file mentioned on either side of an edge, sorted.
func (g *Graph) Nodes() []string {
	all := sets.New[string]()
	for n := range g.dependenciesOf {
		all.Add(n)
	}
	for n := range g.dependentsOf {
		all.Add(n)
	}
	return sorted(all)
}

// Len returns the number of files that currently declare dependencies.
func (g *Graph) Len() int {
	return len(g.dependenciesOf)
}

// Clear removes every edge from the graph.
func (g *Graph) Clear() {
	g.dependenciesOf = make(map[string]sets.Set[string])
	g.dependentsOf = make(map[string]sets.Set[string])
}

func sorted(s sets.Set[string]) []string {
	if s.Len() == 0 {
		return nil
	}
	out := s.Values()
	sort.Strings(out)
	return out
}
