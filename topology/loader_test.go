//go:build unit

package topology_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hugolhafner/easyflow/topology"
	"github.com/stretchr/testify/require"
)

const hclGraph = `
transport "tcp" {
  dial_attempts = 3
}

node "publisher" {
  outputs = ["subscriber"]
}

node "subscriber" {
  address = "127.0.0.1:7100"
}
`

const tomlGraph = `
[transport]
kind = "memory"
capacity = 8

[[node]]
name = "publisher"
outputs = ["subscriber", "audit"]

[[node]]
name = "subscriber"

[[node]]
name = "audit"
`

const jsonGraph = `{
  "transport": {"kind": "kafka", "brokers": ["localhost:9092"], "topic_prefix": "flow."},
  "nodes": [
    {"name": "a", "outputs": ["b"]},
    {"name": "b"}
  ]
}`

func writeGraph(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_HCL(t *testing.T) {
	topo, err := topology.Load(writeGraph(t, "graph.hcl", hclGraph))
	require.NoError(t, err)

	require.Equal(t, topology.TransportTCP, topo.Transport().Kind)
	require.Equal(t, 3, topo.Transport().DialAttempts)

	sub, ok := topo.Node("subscriber")
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:7100", sub.Address)

	e, ok := topo.DefaultOutput("publisher")
	require.True(t, ok)
	require.Equal(t, "subscriber", e.To)
}

func TestLoad_HCLEnvironment(t *testing.T) {
	t.Setenv("EASYFLOW_TEST_ADDR", "127.0.0.1:7200")

	topo, err := topology.Load(
		writeGraph(
			t, "graph.hcl", `
transport "tcp" {}
node "a" {
  outputs = ["b"]
}
node "b" {
  address = env.EASYFLOW_TEST_ADDR
}
`,
		),
	)
	require.NoError(t, err)

	b, _ := topo.Node("b")
	require.Equal(t, "127.0.0.1:7200", b.Address)
}

func TestLoad_TOML(t *testing.T) {
	topo, err := topology.Load(writeGraph(t, "graph.toml", tomlGraph))
	require.NoError(t, err)

	require.Equal(t, topology.TransportMemory, topo.Transport().Kind)
	require.Equal(t, 8, topo.Transport().Capacity)
	require.Len(t, topo.Outputs("publisher"), 2)

	_, ok := topo.Edge("publisher", "audit")
	require.True(t, ok)
}

func TestLoad_JSON(t *testing.T) {
	topo, err := topology.Load(writeGraph(t, "graph.json", jsonGraph))
	require.NoError(t, err)

	require.Equal(t, topology.TransportKafka, topo.Transport().Kind)
	require.Equal(t, []string{"localhost:9092"}, topo.Transport().Brokers)
	require.Equal(t, "flow.", topo.Transport().TopicPrefix)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := topology.Load(filepath.Join(t.TempDir(), "nope.hcl"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := topology.Load(writeGraph(t, "graph.yaml", "nodes: []"))
		require.ErrorIs(t, err, topology.ErrUnsupportedFormat)
	})

	t.Run("malformed hcl", func(t *testing.T) {
		_, err := topology.Load(writeGraph(t, "graph.hcl", `node "a" {`))
		require.Error(t, err)
	})

	t.Run("unknown peer", func(t *testing.T) {
		_, err := topology.Load(writeGraph(t, "graph.toml", "[[node]]\nname = \"a\"\noutputs = [\"b\"]\n"))
		require.ErrorIs(t, err, topology.ErrUnknownNode)
	})

	t.Run("unknown transport", func(t *testing.T) {
		_, err := topology.Load(writeGraph(t, "graph.json", `{"transport": {"kind": "carrier-pigeon"}, "nodes": []}`))
		require.ErrorContains(t, err, "unknown transport kind")
	})
}
