package topology

import (
	"errors"
	"fmt"
)

type TransportKind string

const (
	TransportMemory TransportKind = "memory"
	TransportTCP    TransportKind = "tcp"
	TransportKafka  TransportKind = "kafka"
)

// TransportConfig describes how the graph's edges are realised.
type TransportConfig struct {
	Kind TransportKind

	// Capacity is the per-edge buffer size of the memory transport.
	Capacity int

	// DialAttempts bounds how often a tcp sender tries to reach its peer.
	DialAttempts int

	// Brokers and TopicPrefix configure the kafka transport.
	Brokers     []string
	TopicPrefix string
}

func defaultTransportConfig() TransportConfig {
	return TransportConfig{
		Kind:         TransportMemory,
		Capacity:     64,
		DialAttempts: 10,
	}
}

func (c TransportConfig) withDefaults() TransportConfig {
	d := defaultTransportConfig()
	if c.Kind == "" {
		c.Kind = d.Kind
	}
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = d.DialAttempts
	}
	return c
}

func (c TransportConfig) validate(t *Topology) error {
	switch c.Kind {
	case TransportMemory:
		return nil

	case TransportTCP:
		var errs []error
		for _, name := range t.order {
			if len(t.inputs[name]) > 0 && t.nodes[name].Address == "" {
				errs = append(errs, fmt.Errorf("node %q receives over tcp but has no address", name))
			}
		}
		return errors.Join(errs...)

	case TransportKafka:
		if len(c.Brokers) == 0 {
			return errors.New("kafka transport requires at least one broker")
		}
		return nil

	default:
		return fmt.Errorf("unknown transport kind %q", c.Kind)
	}
}
