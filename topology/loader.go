package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

var ErrUnsupportedFormat = errors.New("unsupported graph file format")

// definition is the on-disk shape of a graph, shared by every format.
type definition struct {
	Transport *transportDefinition `hcl:"transport,block" toml:"transport" json:"transport"`
	Nodes     []nodeDefinition     `hcl:"node,block" toml:"node" json:"nodes"`
}

type transportDefinition struct {
	Kind         string   `hcl:"kind,label" toml:"kind" json:"kind"`
	Capacity     int      `hcl:"capacity,optional" toml:"capacity" json:"capacity"`
	DialAttempts int      `hcl:"dial_attempts,optional" toml:"dial_attempts" json:"dial_attempts"`
	Brokers      []string `hcl:"brokers,optional" toml:"brokers" json:"brokers"`
	TopicPrefix  string   `hcl:"topic_prefix,optional" toml:"topic_prefix" json:"topic_prefix"`
}

type nodeDefinition struct {
	Name    string   `hcl:"name,label" toml:"name" json:"name"`
	Address string   `hcl:"address,optional" toml:"address" json:"address"`
	Outputs []string `hcl:"outputs,optional" toml:"outputs" json:"outputs"`
}

// Load reads a graph description from path. The format is picked from the
// file extension: .hcl, .toml or .json.
func Load(path string) (*Topology, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}

	return Parse(src, path)
}

// Parse decodes src using the format implied by filename's extension.
func Parse(src []byte, filename string) (*Topology, error) {
	var def definition

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".hcl":
		if err := decodeHCL(src, filename, &def); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(src), &def); err != nil {
			return nil, fmt.Errorf("decode toml %s: %w", filename, err)
		}
	case ".json":
		if err := json.Unmarshal(src, &def); err != nil {
			return nil, fmt.Errorf("decode json %s: %w", filename, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	return def.build()
}

func decodeHCL(src []byte, filename string, def *definition) error {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("parse hcl %s: %w", filename, diags)
	}

	diags = gohcl.DecodeBody(file.Body, envEvalContext(), def)
	if diags.HasErrors() {
		return fmt.Errorf("decode hcl %s: %w", filename, diags)
	}

	return nil
}

// envEvalContext exposes the process environment to HCL files as env.NAME.
func envEvalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" || !utf8.ValidString(key) || !utf8.ValidString(value) {
			continue
		}
		vars[key] = cty.StringVal(value)
	}

	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

func (d definition) build() (*Topology, error) {
	b := NewBuilder()

	if d.Transport != nil {
		b.WithTransport(
			TransportConfig{
				Kind:         TransportKind(strings.ToLower(d.Transport.Kind)),
				Capacity:     d.Transport.Capacity,
				DialAttempts: d.Transport.DialAttempts,
				Brokers:      d.Transport.Brokers,
				TopicPrefix:  d.Transport.TopicPrefix,
			},
		)
	}

	for _, n := range d.Nodes {
		var opts []NodeOption
		if n.Address != "" {
			opts = append(opts, WithAddress(n.Address))
		}
		b.AddNode(n.Name, opts...)
	}

	for _, n := range d.Nodes {
		for _, to := range n.Outputs {
			b.AddEdge(n.Name, to)
		}
	}

	return b.Build()
}
