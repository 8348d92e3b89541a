// Package kafka carries graph edges over Kafka topics, one topic per edge.
// Receivers consume in a consumer group named after the receiving node, so
// each node sees every payload on its edges once.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/easyflow/link"
	"github.com/hugolhafner/easyflow/logger"
	"github.com/hugolhafner/easyflow/topology"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var _ link.Transport = (*Transport)(nil)

type Config struct {
	Brokers     []string
	TopicPrefix string

	// CreateTopics issues a CreateTopics request for an edge's topic the
	// first time an endpoint is built for it.
	CreateTopics      bool
	Partitions        int32
	ReplicationFactor int16
	CreateTimeout     time.Duration

	MaxPollRecords int
	Logger         logger.Logger
	ClientOpts     []kgo.Opt
}

func defaultConfig() Config {
	return Config{
		Brokers:           []string{"localhost:9092"},
		CreateTopics:      true,
		Partitions:        1,
		ReplicationFactor: -1,
		CreateTimeout:     10 * time.Second,
		MaxPollRecords:    100,
		Logger:            logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithBrokers(brokers ...string) Option {
	return func(c *Config) {
		if len(brokers) > 0 {
			c.Brokers = brokers
		}
	}
}

func WithTopicPrefix(prefix string) Option {
	return func(c *Config) {
		c.TopicPrefix = prefix
	}
}

func WithCreateTopics(enabled bool) Option {
	return func(c *Config) {
		c.CreateTopics = enabled
	}
}

func WithPartitions(n int32) Option {
	return func(c *Config) {
		if n > 0 {
			c.Partitions = n
		}
	}
}

func WithMaxPollRecords(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxPollRecords = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClientOpts appends raw franz-go options to every client the transport
// creates (SASL, TLS and so on).
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(c *Config) {
		c.ClientOpts = append(c.ClientOpts, opts...)
	}
}

type Transport struct {
	config Config
	logger logger.Logger

	mu      sync.Mutex
	clients map[*kgo.Client]struct{}
	created map[string]struct{}
	closed  bool
}

func New(opts ...Option) *Transport {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Transport{
		config:  cfg,
		logger:  cfg.Logger.With("component", "transport", "transport", "kafka"),
		clients: make(map[*kgo.Client]struct{}),
		created: make(map[string]struct{}),
	}
}

// Topic is the topic backing edge.
func (t *Transport) Topic(edge topology.Edge) string {
	return t.config.TopicPrefix + edge.From + "." + edge.To
}

func (t *Transport) newClient(extra ...kgo.Opt) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(t.config.Brokers...),
		kgo.WithLogger(newKgoLogger(t.logger)),
	}
	opts = append(opts, extra...)
	opts = append(opts, t.config.ClientOpts...)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, link.ErrClosed
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}
	t.clients[client] = struct{}{}
	return client, nil
}

func (t *Transport) release(client *kgo.Client) {
	t.mu.Lock()
	_, owned := t.clients[client]
	delete(t.clients, client)
	t.mu.Unlock()

	if owned {
		client.Close()
	}
}

func (t *Transport) ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	if !t.config.CreateTopics {
		return nil
	}

	t.mu.Lock()
	_, done := t.created[topic]
	t.mu.Unlock()
	if done {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.CreateTimeout)
	defer cancel()

	req := kmsg.NewPtrCreateTopicsRequest()
	req.TimeoutMillis = int32(t.config.CreateTimeout.Milliseconds())

	rt := kmsg.NewCreateTopicsRequestTopic()
	rt.Topic = topic
	rt.NumPartitions = t.config.Partitions
	rt.ReplicationFactor = t.config.ReplicationFactor
	req.Topics = append(req.Topics, rt)

	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}

	for _, result := range resp.Topics {
		if err := kerr.ErrorForCode(result.ErrorCode); err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
	}

	t.mu.Lock()
	t.created[topic] = struct{}{}
	t.mu.Unlock()

	t.logger.Debug("Topic ready", "topic", topic)
	return nil
}

func (t *Transport) Sender(ctx context.Context, edge topology.Edge) (link.Sender, error) {
	topic := t.Topic(edge)

	client, err := t.newClient(kgo.DefaultProduceTopic(topic))
	if err != nil {
		return nil, err
	}

	if err := t.ensureTopic(ctx, client, topic); err != nil {
		t.release(client)
		return nil, err
	}

	return &sender{transport: t, client: client, topic: topic}, nil
}

func (t *Transport) Receiver(ctx context.Context, edge topology.Edge) (link.Receiver, error) {
	topic := t.Topic(edge)

	client, err := t.newClient(
		kgo.ConsumerGroup(edge.To),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, err
	}

	if err := t.ensureTopic(ctx, client, topic); err != nil {
		t.release(client)
		return nil, err
	}

	return &receiver{
		transport:  t,
		client:     client,
		topic:      topic,
		maxRecords: t.config.MaxPollRecords,
	}, nil
}

// Close closes every client; open receivers then report io.EOF.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	clients := make([]*kgo.Client, 0, len(t.clients))
	for c := range t.clients {
		clients = append(clients, c)
	}
	t.clients = make(map[*kgo.Client]struct{})
	t.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	return nil
}

type sender struct {
	transport *Transport
	client    *kgo.Client
	topic     string
	closed    atomic.Bool
}

func (s *sender) Send(ctx context.Context, payload []byte) error {
	if s.closed.Load() {
		return link.ErrClosed
	}

	value := make([]byte, len(payload))
	copy(value, payload)

	err := s.client.ProduceSync(ctx, &kgo.Record{Topic: s.topic, Value: value}).FirstErr()
	if errors.Is(err, kgo.ErrClientClosed) {
		return link.ErrClosed
	}
	return err
}

func (s *sender) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.Flush(ctx)
	s.transport.release(s.client)
	return err
}

type receiver struct {
	transport  *Transport
	client     *kgo.Client
	topic      string
	maxRecords int

	buffered []*kgo.Record
	closed   atomic.Bool
}

func (r *receiver) Recv(ctx context.Context) ([]byte, error) {
	if r.closed.Load() {
		return nil, link.ErrClosed
	}

	for len(r.buffered) == 0 {
		fetches := r.client.PollRecords(ctx, r.maxRecords)
		if fetches.IsClientClosed() {
			return nil, io.EOF
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded) {
				continue
			}
			return nil, fmt.Errorf("poll %s: %w", r.topic, fe.Err)
		}

		r.buffered = fetches.Records()
	}

	rec := r.buffered[0]
	r.buffered[0] = nil
	r.buffered = r.buffered[1:]
	return rec.Value, nil
}

func (r *receiver) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.transport.release(r.client)
	}
	return nil
}
