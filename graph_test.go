//go:build unit

package easyflow_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hugolhafner/easyflow"
	mocklink "github.com/hugolhafner/easyflow/link/mock"
	"github.com/hugolhafner/easyflow/link/memory"
	"github.com/hugolhafner/easyflow/logger"
	"github.com/hugolhafner/easyflow/pool"
	"github.com/hugolhafner/easyflow/serde"
	"github.com/hugolhafner/easyflow/topology"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const pubSubGraph = `
transport "memory" {
  capacity = 16
}

node "publisher" {
  outputs = ["subscriber"]
}

node "subscriber" {}
`

func writeGraph(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// fanGraph is a->b, a->c, c->b.
func fanGraph(t *testing.T, opts ...easyflow.ConfigOption) *easyflow.Graph {
	t.Helper()

	topo, err := topology.NewBuilder().
		AddNode("a").
		AddNode("b").
		AddNode("c").
		AddEdge("a", "b").
		AddEdge("a", "c").
		AddEdge("c", "b").
		Build()
	require.NoError(t, err)

	opts = append(
		[]easyflow.ConfigOption{
			easyflow.WithLogger(logger.NewNoopLogger()),
			easyflow.WithPool(pool.New()),
		}, opts...,
	)

	g, err := easyflow.NewGraph(topo, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGraph_ResolvesDefaultAndNamedEdges(t *testing.T) {
	ctx := context.Background()
	g := fanGraph(t)

	s, err := g.BuildSender(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, topology.Edge{From: "a", To: "b"}, s.Edge())

	s, err = g.BuildSenderTo(ctx, "a", "c")
	require.NoError(t, err)
	require.Equal(t, topology.Edge{From: "a", To: "c"}, s.Edge())

	_, err = g.BuildReceiver(ctx, "b")
	require.NoError(t, err)

	_, err = g.BuildReceiverFrom(ctx, "b", "c")
	require.NoError(t, err)
}

func TestGraph_ResolutionErrors(t *testing.T) {
	ctx := context.Background()
	g := fanGraph(t)

	tests := []struct {
		name  string
		build func() error
		want  error
		node  string
		peer  string
	}{
		{
			name: "unknown sender node",
			build: func() error {
				_, err := g.BuildSender(ctx, "ghost")
				return err
			},
			want: easyflow.ErrUnknownNode,
			node: "ghost",
		},
		{
			name: "unknown receiver node",
			build: func() error {
				_, err := g.BuildReceiverFrom(ctx, "ghost", "a")
				return err
			},
			want: easyflow.ErrUnknownNode,
			node: "ghost",
			peer: "a",
		},
		{
			name: "no outgoing edge",
			build: func() error {
				_, err := g.BuildSender(ctx, "b")
				return err
			},
			want: easyflow.ErrNoDefaultEdge,
			node: "b",
		},
		{
			name: "no incoming edge",
			build: func() error {
				_, err := g.BuildReceiver(ctx, "a")
				return err
			},
			want: easyflow.ErrNoDefaultEdge,
			node: "a",
		},
		{
			name: "edge in the wrong direction",
			build: func() error {
				_, err := g.BuildSenderTo(ctx, "b", "a")
				return err
			},
			want: easyflow.ErrUnknownEdge,
			node: "b",
			peer: "a",
		},
		{
			name: "unconnected peer",
			build: func() error {
				_, err := g.BuildReceiverFrom(ctx, "c", "b")
				return err
			},
			want: easyflow.ErrUnknownEdge,
			node: "c",
			peer: "b",
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				err := tt.build()
				require.ErrorIs(t, err, tt.want)

				re, ok := easyflow.AsResolutionError(err)
				require.True(t, ok)
				require.Equal(t, tt.node, re.Node)
				require.Equal(t, tt.peer, re.Peer)
			},
		)
	}
}

func TestGraph_BuildIsRepeatable(t *testing.T) {
	ctx := context.Background()
	g := fanGraph(t)

	for range 3 {
		s, err := g.BuildSender(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
	require.Len(t, g.Topology().Nodes(), 3)
}

func TestOpen_PublishSubscribe(t *testing.T) {
	ctx := context.Background()

	g, err := easyflow.Open(
		writeGraph(t, "graph.hcl", pubSubGraph),
		easyflow.WithLogger(logger.NewNoopLogger()),
		easyflow.WithPool(pool.New()),
	)
	require.NoError(t, err)
	defer g.Close()

	var (
		mu  sync.Mutex
		got []string
	)
	l, err := g.Listen(
		ctx, "subscriber", func(ctx context.Context, payload []byte) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, string(payload))
			return nil
		},
	)
	require.NoError(t, err)
	defer l.Close()

	s, err := g.BuildSender(ctx, "publisher")
	require.NoError(t, err)
	require.NoError(t, s.Send(ctx, []byte("hello")))
	require.NoError(t, easyflow.SendValue(ctx, s, serde.String(), "world"))
	require.NoError(t, s.Close())

	require.NoError(t, l.Wait())
	require.True(t, l.IsClosed())
	require.Equal(t, []string{"hello", "world"}, got)
}

func TestOpen_Errors(t *testing.T) {
	_, err := easyflow.Open(filepath.Join(t.TempDir(), "missing.hcl"))
	oe, ok := easyflow.AsOpenError(err)
	require.True(t, ok)
	require.Contains(t, oe.Path, "missing.hcl")

	_, err = easyflow.Open(writeGraph(t, "graph.yaml", "nodes: []"))
	require.ErrorIs(t, err, topology.ErrUnsupportedFormat)

	_, err = easyflow.Open(writeGraph(t, "graph.hcl", `node "a" { outputs = ["ghost"] }`))
	_, ok = easyflow.AsOpenError(err)
	require.True(t, ok)
}

func TestGraph_ListenFrom(t *testing.T) {
	ctx := context.Background()
	g := fanGraph(t)

	received := make(chan string, 4)
	l, err := g.ListenFrom(
		ctx, "b", "c", func(ctx context.Context, payload []byte) error {
			received <- string(payload)
			return nil
		},
	)
	require.NoError(t, err)

	fromA, err := g.BuildSender(ctx, "a")
	require.NoError(t, err)
	defer fromA.Close()
	fromC, err := g.BuildSenderTo(ctx, "c", "b")
	require.NoError(t, err)

	require.NoError(t, fromA.Send(ctx, []byte("not for this listener")))
	require.NoError(t, fromC.Send(ctx, []byte("from c")))
	require.NoError(t, fromC.Close())

	require.NoError(t, l.Wait())
	close(received)

	var got []string
	for p := range received {
		got = append(got, p)
	}
	require.Equal(t, []string{"from c"}, got)
}

func TestGraph_CloseEndsListenersAndSenders(t *testing.T) {
	ctx := context.Background()
	g := fanGraph(t)

	l, err := g.Listen(ctx, "b", func(ctx context.Context, payload []byte) error { return nil })
	require.NoError(t, err)

	s, err := g.BuildSender(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	require.NoError(t, l.Wait())

	err = s.Send(ctx, []byte("late"))
	se, ok := easyflow.AsSendError(err)
	require.True(t, ok)
	require.Equal(t, "a", se.Node)
	require.Equal(t, "b", se.Peer)

	_, err = g.BuildSender(ctx, "a")
	require.ErrorIs(t, err, easyflow.ErrClosed)
}

func TestGraph_TransportFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("handshake refused")

	tx := &mocklink.Transport{}
	tx.On("Sender", mock.Anything, topology.Edge{From: "a", To: "b"}).Return(nil, boom).Once()

	sendErr := errors.New("broken pipe")
	sender := &mocklink.Sender{}
	sender.On("Send", mock.Anything, []byte("x")).Return(sendErr).Once()
	tx.On("Sender", mock.Anything, topology.Edge{From: "a", To: "c"}).Return(sender, nil).Once()
	tx.On("Close").Return(nil).Once()

	g := fanGraph(t, easyflow.WithTransport(tx))

	_, err := g.BuildSender(ctx, "a")
	require.ErrorIs(t, err, boom)
	_, ok := easyflow.AsResolutionError(err)
	require.True(t, ok)

	s, err := g.BuildSenderTo(ctx, "a", "c")
	require.NoError(t, err)

	err = s.Send(ctx, []byte("x"))
	require.ErrorIs(t, err, sendErr)
	_, ok = easyflow.AsSendError(err)
	require.True(t, ok)

	require.NoError(t, g.Close())
	tx.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestGraph_Print(t *testing.T) {
	g := fanGraph(t, easyflow.WithTransport(memory.New()))

	var buf bytes.Buffer
	g.Print(&buf)
	require.Contains(t, buf.String(), "- a")
	require.Contains(t, buf.String(), "- c")
}
