// Package easyflow connects the nodes of a dataflow graph through channels and
// delivers the messages arriving on a channel to a handler running on a
// shared worker pool.
package easyflow

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hugolhafner/easyflow/link"
	"github.com/hugolhafner/easyflow/link/kafka"
	"github.com/hugolhafner/easyflow/link/memory"
	"github.com/hugolhafner/easyflow/link/tcp"
	"github.com/hugolhafner/easyflow/listener"
	"github.com/hugolhafner/easyflow/logger"
	"github.com/hugolhafner/easyflow/topology"
)

const Version = "v0.1.0" // x-release-please-version

// Graph resolves node names into channel endpoints. It is immutable once
// opened and safe for concurrent use; building endpoints never changes the
// topology and may be repeated.
type Graph struct {
	topology  *topology.Topology
	config    Config
	transport link.Transport
	logger    logger.Logger

	closeOnce sync.Once
	closedCh  chan struct{}
}

// Open loads the graph description at path (.hcl, .toml or .json) and
// prepares the transport it declares.
func Open(path string, opts ...ConfigOption) (*Graph, error) {
	topo, err := topology.Load(path)
	if err != nil {
		return nil, &OpenError{Cause: err, Path: path}
	}

	return NewGraph(topo, opts...)
}

func NewGraph(topo *topology.Topology, opts ...ConfigOption) (*Graph, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewGraphWithConfig(topo, config)
}

func NewGraphWithConfig(topo *topology.Topology, config Config) (*Graph, error) {
	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}

	transport := config.Transport
	if transport == nil {
		var err error
		if transport, err = newTransport(topo, l); err != nil {
			return nil, err
		}
	}

	return &Graph{
		topology:  topo,
		config:    config,
		transport: transport,
		logger:    l,
		closedCh:  make(chan struct{}),
	}, nil
}

func newTransport(topo *topology.Topology, l logger.Logger) (link.Transport, error) {
	cfg := topo.Transport()

	switch cfg.Kind {
	case topology.TransportMemory:
		return memory.New(memory.WithCapacity(cfg.Capacity)), nil

	case topology.TransportTCP:
		return tcp.New(
			topo,
			tcp.WithDialAttempts(cfg.DialAttempts),
			tcp.WithInboxSize(cfg.Capacity),
			tcp.WithLogger(l),
		), nil

	case topology.TransportKafka:
		return kafka.New(
			kafka.WithBrokers(cfg.Brokers...),
			kafka.WithTopicPrefix(cfg.TopicPrefix),
			kafka.WithLogger(l),
		), nil

	default:
		return nil, fmt.Errorf("unsupported transport kind %q", cfg.Kind)
	}
}

func (g *Graph) Topology() *topology.Topology {
	return g.topology
}

// Print writes the graph as an indented tree of nodes.
func (g *Graph) Print(w io.Writer) {
	g.topology.Print(w)
}

// BuildSender returns a sender on node's default outgoing edge.
func (g *Graph) BuildSender(ctx context.Context, node string) (*Sender, error) {
	edge, err := g.resolveOutput(node, "")
	if err != nil {
		return nil, err
	}
	return g.sender(ctx, edge, "")
}

// BuildSenderTo returns a sender on the edge node->peer.
func (g *Graph) BuildSenderTo(ctx context.Context, node, peer string) (*Sender, error) {
	edge, err := g.resolveOutput(node, peer)
	if err != nil {
		return nil, err
	}
	return g.sender(ctx, edge, peer)
}

// BuildReceiver returns a receiver on node's default incoming edge.
func (g *Graph) BuildReceiver(ctx context.Context, node string) (link.Receiver, error) {
	edge, err := g.resolveInput(node, "")
	if err != nil {
		return nil, err
	}
	return g.receiver(ctx, edge, "")
}

// BuildReceiverFrom returns a receiver on the edge peer->node.
func (g *Graph) BuildReceiverFrom(ctx context.Context, node, peer string) (link.Receiver, error) {
	edge, err := g.resolveInput(node, peer)
	if err != nil {
		return nil, err
	}
	return g.receiver(ctx, edge, peer)
}

// Listen starts a listener on node's default incoming edge. Listener options
// are applied after the graph's logger, telemetry and pool.
func (g *Graph) Listen(
	ctx context.Context, node string, cb listener.Callback, opts ...listener.Option,
) (*listener.Listener, error) {
	rx, err := g.BuildReceiver(ctx, node)
	if err != nil {
		return nil, err
	}
	return g.listen(node, rx, cb, opts), nil
}

// ListenFrom starts a listener on the edge peer->node.
func (g *Graph) ListenFrom(
	ctx context.Context, node, peer string, cb listener.Callback, opts ...listener.Option,
) (*listener.Listener, error) {
	rx, err := g.BuildReceiverFrom(ctx, node, peer)
	if err != nil {
		return nil, err
	}
	return g.listen(node, rx, cb, opts), nil
}

func (g *Graph) listen(
	node string, rx link.Receiver, cb listener.Callback, opts []listener.Option,
) *listener.Listener {
	all := make([]listener.Option, 0, len(opts)+3)
	all = append(
		all,
		listener.WithLogger(g.logger),
		listener.WithTelemetry(g.config.Telemetry),
		listener.WithPool(g.config.Pool),
	)
	all = append(all, opts...)

	return listener.New(node, rx, cb, all...)
}

// Close tears down the transport. Open receivers see the end of their
// stream and senders fail with a SendError.
func (g *Graph) Close() error {
	var err error
	g.closeOnce.Do(
		func() {
			close(g.closedCh)
			err = g.transport.Close()
		},
	)
	return err
}

func (g *Graph) isClosed() bool {
	select {
	case <-g.closedCh:
		return true
	default:
		return false
	}
}

func (g *Graph) resolveOutput(node, peer string) (topology.Edge, error) {
	if err := g.checkNode(node, peer); err != nil {
		return topology.Edge{}, err
	}

	if peer == "" {
		edge, ok := g.topology.DefaultOutput(node)
		if !ok {
			return topology.Edge{}, &ResolutionError{Cause: ErrNoDefaultEdge, Node: node}
		}
		return edge, nil
	}

	edge, ok := g.topology.Edge(node, peer)
	if !ok {
		return topology.Edge{}, &ResolutionError{Cause: ErrUnknownEdge, Node: node, Peer: peer}
	}
	return edge, nil
}

func (g *Graph) resolveInput(node, peer string) (topology.Edge, error) {
	if err := g.checkNode(node, peer); err != nil {
		return topology.Edge{}, err
	}

	if peer == "" {
		edge, ok := g.topology.DefaultInput(node)
		if !ok {
			return topology.Edge{}, &ResolutionError{Cause: ErrNoDefaultEdge, Node: node}
		}
		return edge, nil
	}

	edge, ok := g.topology.Edge(peer, node)
	if !ok {
		return topology.Edge{}, &ResolutionError{Cause: ErrUnknownEdge, Node: node, Peer: peer}
	}
	return edge, nil
}

func (g *Graph) checkNode(node, peer string) error {
	if g.isClosed() {
		return &ResolutionError{Cause: ErrClosed, Node: node, Peer: peer}
	}
	if _, ok := g.topology.Node(node); !ok {
		return &ResolutionError{Cause: ErrUnknownNode, Node: node, Peer: peer}
	}
	return nil
}

func (g *Graph) sender(ctx context.Context, edge topology.Edge, peer string) (*Sender, error) {
	s, err := g.transport.Sender(ctx, edge)
	if err != nil {
		return nil, &ResolutionError{Cause: err, Node: edge.From, Peer: peer}
	}

	g.logger.Debug("Sender built", "edge", edge.ID())
	return newSender(s, edge, g.config.Telemetry), nil
}

func (g *Graph) receiver(ctx context.Context, edge topology.Edge, peer string) (link.Receiver, error) {
	r, err := g.transport.Receiver(ctx, edge)
	if err != nil {
		return nil, &ResolutionError{Cause: err, Node: edge.To, Peer: peer}
	}

	g.logger.Debug("Receiver built", "edge", edge.ID())
	return r, nil
}
