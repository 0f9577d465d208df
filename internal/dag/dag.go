// Package dag provides directed graph operations for file dependencies.
// It supports cycle detection, topological layering and simple-cycle
// enumeration, plus undirected connected components.
package dag

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when an operation requires an acyclic graph.
var ErrCycle = errors.New("cycle detected")

// Node is a graph vertex. Data carries caller payload, such as a group index.
type Node struct {
	ID   string
	Data any
}

type edgeKey struct{ from, to string }

// Graph is a directed graph where an edge parent -> child means the child
// depends on the parent (for files: the creator runs before the reader).
type Graph struct {
	nodes   map[string]*Node
	order   []string            // insertion order
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
	edgeSet map[edgeKey]struct{}
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
		edgeSet: make(map[edgeKey]struct{}),
	}
}

// AddNode adds a node, or replaces the data of an existing one without
// changing its position.
func (g *Graph) AddNode(id string, data any) {
	if n, ok := g.nodes[id]; ok {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.order = append(g.order, id)
}

// AddEdge adds parent -> child. Repeated edges collapse into one, so a pair
// of files sharing several tables still yields a single dependency.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, ok := g.nodes[parentID]; !ok {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, ok := g.nodes[childID]; !ok {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	k := edgeKey{parentID, childID}
	if _, dup := g.edgeSet[k]; dup {
		return nil
	}
	g.edgeSet[k] = struct{}{}
	g.edges[parentID] = append(g.edges[parentID], childID)
	g.parents[childID] = append(g.parents[childID], parentID)
	return nil
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// GetParents returns the direct dependencies of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the direct dependents of a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return len(g.edgeSet)
}

// TopologicalSort returns nodes with every parent ahead of its children.
// Among ready nodes the earliest inserted goes first. A cyclic graph yields
// an error wrapping ErrCycle that names the unresolved nodes.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.parents[id])
	}
	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	var ready []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	result := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, g.nodes[id])

		released := false
		for _, child := range g.edges[id] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
				released = true
			}
		}
		if released {
			sort.SliceStable(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		}
	}

	if len(result) != len(g.nodes) {
		var stuck []string
		for _, id := range g.order {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return result, nil
}

// Layers groups nodes into generations using Kahn's algorithm.
// Generation 0 holds nodes without parents; a node in generation k has all
// parents in generations < k. Each generation is sorted by ID.
//
// If some nodes are never released the graph is cyclic: Layers returns the
// generations computed so far together with an error wrapping ErrCycle.
func (g *Graph) Layers() ([][]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	var current []string
	for _, id := range g.order {
		indegree[id] = len(g.parents[id])
		if indegree[id] == 0 {
			current = append(current, id)
		}
	}

	var layers [][]string
	consumed := 0
	for len(current) > 0 {
		sort.Strings(current)
		layers = append(layers, current)
		consumed += len(current)

		var next []string
		for _, id := range current {
			for _, child := range g.edges[id] {
				indegree[child]--
				if indegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		current = next
	}

	if consumed != len(g.nodes) {
		return layers, fmt.Errorf("%w: %d of %d nodes could not be layered", ErrCycle, len(g.nodes)-consumed, len(g.nodes))
	}
	return layers, nil
}

// Subgraph returns the graph induced by ids: those nodes, in the given
// order, plus every edge between two of them.
func (g *Graph) Subgraph(ids []string) *Graph {
	sub := NewGraph()
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			sub.AddNode(id, n.Data)
		}
	}
	for _, id := range sub.order {
		for _, child := range g.edges[id] {
			if sub.HasNode(child) {
				_ = sub.AddEdge(id, child)
			}
		}
	}
	return sub
}
