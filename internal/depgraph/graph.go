package depgraph

import (
	"fmt"
	"sort"
	"strings"
)

// EdgeKind distinguishes a HARD dependency (gates state transitions) from a
// SOFT one (influences ordering only).
type EdgeKind int

const (
	Hard EdgeKind = iota
	Soft
)

func (k EdgeKind) String() string {
	if k == Hard {
		return "HARD"
	}
	return "SOFT"
}

// Edge is one dependency: the owning component depends on To, with Kind
// semantics.
type Edge struct {
	To   string
	Kind EdgeKind
}

type node struct {
	name  string
	edges []Edge
}

// Graph is a directed graph of component names. The zero value is not
// usable; construct with New.
type Graph struct {
	nodes map[string]*node
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode registers name with no dependencies if it is not already present.
// Calling it on an existing node is a no-op; use AddEdge to add
// dependencies.
func (g *Graph) AddNode(name string) {
	if _, ok := g.nodes[name]; !ok {
		g.nodes[name] = &node{name: name}
	}
}

// AddEdge records that from depends on to with the given kind. Both ends
// are registered automatically if absent.
func (g *Graph) AddEdge(from, to string, kind EdgeKind) {
	g.AddNode(from)
	g.AddNode(to)
	g.nodes[from].edges = append(g.nodes[from].edges, Edge{To: to, Kind: kind})
}

// RemoveNode deletes name and every edge pointing at it.
func (g *Graph) RemoveNode(name string) {
	delete(g.nodes, name)
	for _, n := range g.nodes {
		kept := n.edges[:0]
		for _, e := range n.edges {
			if e.To != name {
				kept = append(kept, e)
			}
		}
		n.edges = kept
	}
}

// Names returns every component name currently in the graph.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dependencies returns name's immediate outgoing edges.
func (g *Graph) Dependencies(name string) []Edge {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	out := make([]Edge, len(n.edges))
	copy(out, n.edges)
	return out
}

// HardDependencies returns the names of name's immediate HARD dependencies.
func (g *Graph) HardDependencies(name string) []string {
	var out []string
	for _, e := range g.Dependencies(name) {
		if e.Kind == Hard {
			out = append(out, e.To)
		}
	}
	return out
}

// Dependents returns the names of every node with an edge (of any kind)
// pointing at name.
func (g *Graph) Dependents(name string) []string {
	var out []string
	for _, n := range g.nodes {
		for _, e := range n.edges {
			if e.To == name {
				out = append(out, n.name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// HardDependents returns the names of every node with a HARD edge pointing
// at name: the set that is stopped and returned to INSTALLED when name
// leaves RUNNING.
func (g *Graph) HardDependents(name string) []string {
	var out []string
	for _, n := range g.nodes {
		for _, e := range n.edges {
			if e.To == name && e.Kind == Hard {
				out = append(out, n.name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// CycleError reports a dependency cycle discovered by Validate or Ordered.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	done
)

// Validate reports a *CycleError if the graph contains a cycle, nil
// otherwise.
func (g *Graph) Validate() error {
	_, err := g.order()
	return err
}

// Ordered returns every component name in reverse-post-order: a component
// always appears after every component it depends on (HARD or SOFT), which
// is the order required for startup. Ties (nodes with no dependency
// relationship to each other) break by ascending name so the order is
// deterministic across runs. Shutdown order is the reverse of this slice.
func (g *Graph) Ordered() ([]string, error) {
	return g.order()
}

func (g *Graph) order() ([]string, error) {
	names := g.Names() // sorted, gives deterministic DFS start order
	state := make(map[string]visitState, len(g.nodes))
	var post []string

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			cyc := append(append([]string{}, path...), name)
			return &CycleError{Cycle: cyc}
		}
		state[name] = visiting
		path = append(path, name)

		n, ok := g.nodes[name]
		if ok {
			deps := make([]string, len(n.edges))
			for i, e := range n.edges {
				deps[i] = e.To
			}
			sort.Strings(deps)
			for _, dep := range deps {
				if err := visit(dep, path); err != nil {
					return err
				}
			}
		}
		state[name] = done
		post = append(post, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return post, nil
}
