// Package dag provides the relationship graph between relations.
// Nodes are relations keyed by "schema.name"; every foreign key is a labeled
// edge from the referencing relation to the referenced one. Several keys may
// link the same pair of relations and a key may point back at its own relation.
package dag

import (
	"fmt"
	"sort"
)

// Node represents a relation in the graph.
type Node struct {
	// ID is the unique identifier ("schema.name")
	ID string
	// Data holds arbitrary node data
	Data interface{}
}

// Edge is a labeled link from the referencing node to the referenced node.
type Edge struct {
	From  string
	To    string
	Label string
	// Data holds arbitrary edge data
	Data interface{}
}

// IsLoop reports whether the edge points back at its own node.
func (e Edge) IsLoop() bool { return e.From == e.To }

// Graph is a directed multigraph of relations.
type Graph struct {
	nodes map[string]*Node
	out   map[string][]Edge // referencing -> edges
	in    map[string][]Edge // referenced -> edges
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}
}

// Clear removes all nodes and edges from the graph.
func (g *Graph) Clear() {
	g.nodes = make(map[string]*Node)
	g.out = make(map[string][]Edge)
	g.in = make(map[string][]Edge)
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data interface{}) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
}

// AddEdge adds a labeled edge from one node to another. Labels are unique
// per source node; re-adding a label replaces its data.
func (g *Graph) AddEdge(from, to, label string, data interface{}) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("node %q does not exist", from)
	}
	if _, exists := g.nodes[to]; !exists {
		return fmt.Errorf("node %q does not exist", to)
	}

	e := Edge{From: from, To: to, Label: label, Data: data}
	for i, existing := range g.out[from] {
		if existing.Label == label {
			if existing.To != to {
				return fmt.Errorf("edge %q from %q already points at %q", label, from, existing.To)
			}
			g.out[from][i] = e
			for j, back := range g.in[to] {
				if back.From == from && back.Label == label {
					g.in[to][j] = e
				}
			}
			return nil
		}
	}
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// OutEdges returns the edges leaving a node, in insertion order.
func (g *Graph) OutEdges(id string) []Edge {
	return g.out[id]
}

// InEdges returns the edges arriving at a node, in insertion order.
func (g *Graph) InEdges(id string) []Edge {
	return g.in[id]
}

// EdgesBetween returns the edges from one node to another.
func (g *Graph) EdgesBetween(from, to string) []Edge {
	var edges []Edge
	for _, e := range g.out[from] {
		if e.To == to {
			edges = append(edges, e)
		}
	}
	return edges
}

// GetAllNodes returns all nodes in the graph.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	// Sort for deterministic output
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, edges := range g.out {
		count += len(edges)
	}
	return count
}

// targets returns the distinct nodes referenced from id, ignoring loops.
func (g *Graph) targets(id string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range g.out[id] {
		if e.IsLoop() || seen[e.To] {
			continue
		}
		seen[e.To] = true
		ids = append(ids, e.To)
	}
	sort.Strings(ids)
	return ids
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasCycle returns true if references form a cycle through two or more
// nodes, along with the cycle path. Self references are not cycles.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string) // Track the path for error reporting

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, next := range g.targets(id) {
			if !visited[next] {
				path[next] = id
				if dfs(next) {
					return true
				}
			} else if recStack[next] {
				// Found cycle, reconstruct path
				cyclePath = []string{next}
				for curr := id; curr != next; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{next}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}

// Levels groups nodes so that every node sits one level above the deepest
// node it references. Level 0 holds relations that reference nothing.
// Returns an error if the graph contains a cycle.
func (g *Graph) Levels() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	assigned := make(map[string]int)

	var getLevel func(id string) int
	getLevel = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}
		level := 0
		for _, ref := range g.targets(id) {
			if l := getLevel(ref) + 1; l > level {
				level = l
			}
		}
		assigned[id] = level
		return level
	}

	maxLevel := -1
	for _, id := range g.sortedIDs() {
		if level := getLevel(id); level > maxLevel {
			maxLevel = level
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range g.sortedIDs() {
		levels[assigned[id]] = append(levels[assigned[id]], id)
	}
	return levels, nil
}

// Reachable returns every node reachable from id by following edges in
// either direction, id included, sorted.
func (g *Graph) Reachable(id string) []string {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.out[cur] {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
		for _, e := range g.in[cur] {
			if !seen[e.From] {
				seen[e.From] = true
				queue = append(queue, e.From)
			}
		}
	}
	result := make([]string, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}
