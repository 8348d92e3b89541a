package topology

import (
	"fmt"
	"io"
)

// Topology is the immutable, validated graph. It is safe for concurrent use
// since nothing mutates it after Build.
type Topology struct {
	nodes     map[string]Node
	order     []string
	outputs   map[string][]Edge
	inputs    map[string][]Edge
	transport TransportConfig
}

func newTopology() *Topology {
	return &Topology{
		nodes:     make(map[string]Node),
		outputs:   make(map[string][]Edge),
		inputs:    make(map[string][]Edge),
		transport: defaultTransportConfig(),
	}
}

func (t *Topology) Node(name string) (Node, bool) {
	n, ok := t.nodes[name]
	return n, ok
}

// Nodes returns the nodes in declaration order.
func (t *Topology) Nodes() []Node {
	nodes := make([]Node, 0, len(t.order))
	for _, name := range t.order {
		nodes = append(nodes, t.nodes[name])
	}
	return nodes
}

func (t *Topology) Outputs(node string) []Edge {
	return append([]Edge(nil), t.outputs[node]...)
}

func (t *Topology) Inputs(node string) []Edge {
	return append([]Edge(nil), t.inputs[node]...)
}

// Edge looks up the edge from -> to.
func (t *Topology) Edge(from, to string) (Edge, bool) {
	for _, e := range t.outputs[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// DefaultOutput is the first outgoing edge declared for node.
func (t *Topology) DefaultOutput(node string) (Edge, bool) {
	out := t.outputs[node]
	if len(out) == 0 {
		return Edge{}, false
	}
	return out[0], true
}

// DefaultInput is the first incoming edge declared for node.
func (t *Topology) DefaultInput(node string) (Edge, bool) {
	in := t.inputs[node]
	if len(in) == 0 {
		return Edge{}, false
	}
	return in[0], true
}

func (t *Topology) Transport() TransportConfig {
	return t.transport
}

// Print writes the graph as an indented tree rooted at nodes without inputs.
func (t *Topology) Print(w io.Writer) {
	visited := make(map[string]bool)
	for _, name := range t.order {
		if len(t.inputs[name]) == 0 {
			t.printNode(w, name, "", visited)
		}
	}
	// cycles have no root; print what is left
	for _, name := range t.order {
		t.printNode(w, name, "", visited)
	}
}

func (t *Topology) printNode(w io.Writer, name, prefix string, visited map[string]bool) {
	if visited[name] {
		return
	}
	visited[name] = true

	node := t.nodes[name]
	if node.Address != "" {
		fmt.Fprintf(w, "%s- %s (%s)\n", prefix, name, node.Address)
	} else {
		fmt.Fprintf(w, "%s- %s\n", prefix, name)
	}

	for _, e := range t.outputs[name] {
		t.printNode(w, e.To, prefix+"  ", visited)
	}
}
