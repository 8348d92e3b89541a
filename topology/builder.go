package topology

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyName     = errors.New("node name must not be empty")
	ErrDuplicateNode = errors.New("duplicate node")
	ErrDuplicateEdge = errors.New("duplicate edge")
	ErrUnknownNode   = errors.New("unknown node")
)

// Builder collects nodes and edges. Validation problems are accumulated and
// reported together by Build. Each Build returns a fresh Topology, so later
// changes to the builder never reach a topology already handed out.
type Builder struct {
	nodes     map[string]Node
	order     []string
	edges     []Edge
	transport TransportConfig
	errs      []error
}

func NewBuilder() *Builder {
	return &Builder{
		nodes:     make(map[string]Node),
		transport: defaultTransportConfig(),
	}
}

func (b *Builder) AddNode(name string, opts ...NodeOption) *Builder {
	if name == "" {
		b.errs = append(b.errs, ErrEmptyName)
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrDuplicateNode, name))
		return b
	}

	node := Node{Name: name}
	for _, opt := range opts {
		opt(&node)
	}

	b.nodes[name] = node
	b.order = append(b.order, name)
	return b
}

// AddEdge declares a channel from -> to. Edges may reference nodes added later.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to})
	return b
}

func (b *Builder) WithTransport(cfg TransportConfig) *Builder {
	b.transport = cfg.withDefaults()
	return b
}

func (b *Builder) Build() (*Topology, error) {
	t := newTopology()
	t.transport = b.transport
	t.order = append([]string(nil), b.order...)
	for name, n := range b.nodes {
		t.nodes[name] = n
	}

	errs := append([]error(nil), b.errs...)

	seen := make(map[Edge]struct{}, len(b.edges))
	for _, e := range b.edges {
		if _, ok := t.nodes[e.From]; !ok {
			errs = append(errs, fmt.Errorf("edge %s: %w %q", e, ErrUnknownNode, e.From))
			continue
		}
		if _, ok := t.nodes[e.To]; !ok {
			errs = append(errs, fmt.Errorf("edge %s: %w %q", e, ErrUnknownNode, e.To))
			continue
		}
		if _, dup := seen[e]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateEdge, e))
			continue
		}
		seen[e] = struct{}{}

		t.outputs[e.From] = append(t.outputs[e.From], e)
		t.inputs[e.To] = append(t.inputs[e.To], e)
	}

	if err := t.transport.validate(t); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return t, nil
}
