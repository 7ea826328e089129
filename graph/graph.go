package graph

import (
	"encoding/json"
	"fmt"
)

// Role records whether a node first appeared as a subject or an object.
type Role string

const (
	RoleSubject Role = "subject"
	RoleObject  Role = "object"
)

// Node is an entity in the assembled graph.
type Node struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Edge is a labeled, directed relationship. Parallel edges are allowed.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Graph is a directed multigraph of resolved entity names. It is built once
// by Assemble or Restore and is read-only afterwards; accessors return
// copies.
type Graph struct {
	nodes []Node
	index map[string]int
	edges []Edge
}

func newGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

func (g *Graph) addNode(name string, role Role) {
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, Node{Name: name, Role: role})
}

// Assemble builds the graph from triples, resolving subjects and objects
// through aliases. It returns nil when there are no triples. Alias claims
// that lose the tie-break and triples with an empty field are reported as
// diagnostics.
func Assemble(triples []Triple, aliases AliasMap) (*Graph, []Diagnostic) {
	if len(triples) == 0 {
		return nil, nil
	}

	lookup, diags := aliases.resolve()
	resolve := func(name string) string {
		if c, ok := lookup[name]; ok {
			return c
		}
		return name
	}

	g := newGraph()
	for i, t := range triples {
		if !t.Complete() {
			diags = append(diags, Diagnostic{
				Kind:    KindPartialRecord,
				Stage:   StageAssemble,
				Segment: NoSegment,
				Message: fmt.Sprintf("triple %d skipped: empty field in %s", i, t),
			})
			continue
		}

		subj := resolve(t.Subject)
		obj := resolve(t.Object)
		g.addNode(subj, RoleSubject)
		g.addNode(obj, RoleObject)
		g.edges = append(g.edges, Edge{Source: subj, Target: obj, Label: t.Predicate})
	}
	return g, diags
}

// Restore rebuilds a graph from persisted nodes and edges. Every edge
// endpoint must name a node.
func Restore(nodes []Node, edges []Edge) (*Graph, error) {
	g := newGraph()
	for _, n := range nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("graph.Restore: node with empty name")
		}
		g.addNode(n.Name, n.Role)
	}
	for _, e := range edges {
		if _, ok := g.index[e.Source]; !ok {
			return nil, fmt.Errorf("graph.Restore: edge source %q is not a node", e.Source)
		}
		if _, ok := g.index[e.Target]; !ok {
			return nil, fmt.Errorf("graph.Restore: edge target %q is not a node", e.Target)
		}
		g.edges = append(g.edges, e)
	}
	return g, nil
}

// Nodes returns the nodes in first-insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the edges in triple order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Node returns the node called name.
func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// NodeCount returns the number of distinct nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges, parallel edges included.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Outgoing returns the edges whose source is name.
func (g *Graph) Outgoing(name string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source == name {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the edges whose target is name.
func (g *Graph) Incoming(name string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Target == name {
			out = append(out, e)
		}
	}
	return out
}

// Neighbourhood walks edges in both directions from seeds up to depth hops
// (BFS) and returns the visited node names in visiting order. Seeds that are
// not nodes are ignored; depth 0 returns only the known seeds.
func (g *Graph) Neighbourhood(seeds []string, depth int) []string {
	if depth < 0 {
		return nil
	}

	adj := g.adjacency()
	visited := make([]bool, len(g.nodes))
	var order []string
	var queue []int

	for _, s := range seeds {
		i, ok := g.index[s]
		if !ok || visited[i] {
			continue
		}
		visited[i] = true
		queue = append(queue, i)
		order = append(order, s)
	}

	for d := 0; d < depth && len(queue) > 0; d++ {
		var next []int
		for _, i := range queue {
			for _, j := range adj[i] {
				if !visited[j] {
					visited[j] = true
					next = append(next, j)
					order = append(order, g.nodes[j].Name)
				}
			}
		}
		queue = next
	}
	return order
}

// adjacency returns the undirected neighbour lists by node index, one entry
// per edge.
func (g *Graph) adjacency() [][]int {
	adj := make([][]int, len(g.nodes))
	for _, e := range g.edges {
		si, ti := g.index[e.Source], g.index[e.Target]
		adj[si] = append(adj[si], ti)
		if si != ti {
			adj[ti] = append(adj[ti], si)
		}
	}
	return adj
}

type graphJSON struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// MarshalJSON encodes the graph as {"nodes": [...], "edges": [...]}.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{Nodes: g.Nodes(), Edges: g.Edges()})
}

// UnmarshalJSON decodes the MarshalJSON form through Restore.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	restored, err := Restore(raw.Nodes, raw.Edges)
	if err != nil {
		return err
	}
	*g = *restored
	return nil
}
