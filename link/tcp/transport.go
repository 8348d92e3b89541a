// Package tcp carries graph edges over TCP. The receiving node listens on its
// configured address; senders dial it and name their edge in a hello frame.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/easyflow/link"
	"github.com/hugolhafner/easyflow/logger"
	"github.com/hugolhafner/easyflow/topology"
)

var _ link.Transport = (*Transport)(nil)

var ErrNoAddress = errors.New("node has no address")

type Config struct {
	DialAttempts int
	DialBackoff  backoff.Backoff
	DialTimeout  time.Duration
	// InboxSize is how many decoded payloads wait per edge before the
	// connection stops reading and TCP flow control takes over.
	InboxSize int
	Logger    logger.Logger
}

func defaultConfig() Config {
	return Config{
		DialAttempts: 10,
		DialBackoff:  backoff.NewFixed(200 * time.Millisecond),
		DialTimeout:  5 * time.Second,
		InboxSize:    64,
		Logger:       logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithDialAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.DialAttempts = n
		}
	}
}

func WithDialBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		if b != nil {
			c.DialBackoff = b
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.DialTimeout = d
		}
	}
}

func WithInboxSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.InboxSize = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

type Transport struct {
	topology *topology.Topology
	config   Config
	logger   logger.Logger

	mu      sync.Mutex
	servers map[string]net.Listener
	inboxes map[string]*inbox
	conns   map[net.Conn]struct{}
	closed  bool

	wg sync.WaitGroup
}

func New(topo *topology.Topology, opts ...Option) *Transport {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Transport{
		topology: topo,
		config:   cfg,
		logger:   cfg.Logger.With("component", "transport", "transport", "tcp"),
		servers:  make(map[string]net.Listener),
		inboxes:  make(map[string]*inbox),
		conns:    make(map[net.Conn]struct{}),
	}
}

func (t *Transport) knownEdge(id string) bool {
	for _, n := range t.topology.Nodes() {
		for _, e := range t.topology.Outputs(n.Name) {
			if e.ID() == id {
				return true
			}
		}
	}
	return false
}

func (t *Transport) address(node string) (string, error) {
	n, ok := t.topology.Node(node)
	if !ok {
		return "", fmt.Errorf("%w: %q", topology.ErrUnknownNode, node)
	}
	if n.Address == "" {
		return "", fmt.Errorf("%w: %q", ErrNoAddress, node)
	}
	return n.Address, nil
}

// Sender dials the receiving node and performs the hello handshake.
func (t *Transport) Sender(ctx context.Context, edge topology.Edge) (link.Sender, error) {
	address, err := t.address(edge.To)
	if err != nil {
		return nil, err
	}

	conn, err := t.dial(ctx, t.resolve(address))
	if err != nil {
		return nil, err
	}

	w := bufio.NewWriter(conn)
	if err := writeHello(w, edge.ID()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake with %s: %w", address, err)
	}

	if !t.track(conn) {
		conn.Close()
		return nil, link.ErrClosed
	}

	t.logger.Debug("Sender connected", "edge", edge.ID(), "address", address)
	return &sender{transport: t, conn: conn, w: w}, nil
}

// resolve maps a configured address to the bound one when this process
// serves it, which matters for ":0" style addresses.
func (t *Transport) resolve(address string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ln, ok := t.servers[address]; ok {
		return ln.Addr().String()
	}
	return address
}

func (t *Transport) dial(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	var lastErr error

	for attempt := 0; attempt < t.config.DialAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.config.DialBackoff.Next(uint(attempt - 1))):
			}
		}

		dialCtx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
		conn, err := d.DialContext(dialCtx, "tcp", address)
		cancel()
		if err == nil {
			return conn, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		t.logger.Debug("Dial failed", "address", address, "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("dial %s after %d attempts: %w", address, t.config.DialAttempts, lastErr)
}

// Receiver starts listening on the receiving node's address if this process
// is not already doing so, and attaches to the edge's inbox.
func (t *Transport) Receiver(ctx context.Context, edge topology.Edge) (link.Receiver, error) {
	address, err := t.address(edge.To)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, link.ErrClosed
	}

	if _, ok := t.servers[address]; !ok {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", address, err)
		}

		t.servers[address] = ln
		t.wg.Add(1)
		go t.accept(address, ln)

		t.logger.Info("Listening for inbound edges", "address", ln.Addr().String(), "node", edge.To)
	}

	return &receiver{inbox: t.inboxLocked(edge.ID(), false)}, nil
}

// inboxLocked returns the edge's inbox, replacing an ended one when fresh is
// set. t.mu must be held.
func (t *Transport) inboxLocked(edgeID string, fresh bool) *inbox {
	box, ok := t.inboxes[edgeID]
	if ok && fresh && box.isEnded() {
		ok = false
	}
	if !ok {
		box = newInbox(t.config.InboxSize)
		t.inboxes[edgeID] = box
	}
	return box
}

func (t *Transport) attachInbox(edgeID string) (*inbox, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, false
	}

	for {
		box := t.inboxLocked(edgeID, true)
		if box.attach() {
			return box, true
		}
	}
}

func (t *Transport) accept(address string, ln net.Listener) {
	defer t.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.logger.Warn("Accept failed, listener stopped", "address", address, "error", err)
			}
			return
		}

		if !t.track(conn) {
			conn.Close()
			return
		}

		t.wg.Add(1)
		go t.handle(conn)
	}
}

func (t *Transport) handle(conn net.Conn) {
	defer t.wg.Done()
	defer t.untrack(conn)
	defer conn.Close()

	l := t.logger.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	r := bufio.NewReader(conn)

	edgeID, err := readHello(r)
	if err != nil {
		l.Warn("Handshake failed", "error", err)
		return
	}

	l = l.With("edge", edgeID)
	if !t.knownEdge(edgeID) {
		l.Warn("Rejecting connection for an edge outside the topology")
		return
	}

	box, ok := t.attachInbox(edgeID)
	if !ok {
		return
	}
	l.Debug("Inbound edge connected")

	for {
		payload, err := readPayload(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				l.Debug("Peer closed the edge")
				box.detach()
				return
			}

			l.Warn("Inbound edge failed", "error", err)
			box.end(fmt.Errorf("edge %s: %w", edgeID, err))
			return
		}

		if !box.push(payload) {
			return
		}
	}
}

func (t *Transport) track(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.conns[conn] = struct{}{}
	return true
}

func (t *Transport) untrack(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, conn)
}

// Close stops listening, ends every inbox and closes open connections.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	servers := make([]net.Listener, 0, len(t.servers))
	for _, ln := range t.servers {
		servers = append(servers, ln)
	}
	inboxes := make([]*inbox, 0, len(t.inboxes))
	for _, box := range t.inboxes {
		inboxes = append(inboxes, box)
	}
	conns := make([]net.Conn, 0, len(t.conns))
	for conn := range t.conns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	var errs []error
	for _, ln := range servers {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	for _, box := range inboxes {
		box.end(io.EOF)
	}
	for _, conn := range conns {
		conn.Close()
	}

	t.wg.Wait()
	return errors.Join(errs...)
}

type sender struct {
	transport *Transport
	conn      net.Conn
	w         *bufio.Writer
	closed    atomic.Bool
}

// Send writes one frame. A send interrupted by ctx leaves the connection in
// an undefined state; the sender should be closed afterwards.
func (s *sender) Send(ctx context.Context, payload []byte) error {
	if s.closed.Load() {
		return link.ErrClosed
	}

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetWriteDeadline(time.Now())
	})

	err := writePayload(s.w, payload)

	if !stop() {
		s.conn.SetWriteDeadline(time.Time{})
		if err != nil {
			return ctx.Err()
		}
	}
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return link.ErrClosed
		}
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func (s *sender) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.transport.untrack(s.conn)
	return s.conn.Close()
}

// inbox buffers decoded payloads for one edge. It ends once every attached
// connection has finished cleanly, on the first connection failure, or when
// the transport closes.
type inbox struct {
	ch chan []byte

	mu      sync.Mutex
	senders int
	ended   bool
	err     error
	done    chan struct{}
}

func newInbox(size int) *inbox {
	return &inbox{
		ch:   make(chan []byte, size),
		done: make(chan struct{}),
	}
}

func (b *inbox) isEnded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

func (b *inbox) attach() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended {
		return false
	}
	b.senders++
	return true
}

func (b *inbox) detach() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.senders--
	if b.senders == 0 {
		b.endLocked(io.EOF)
	}
}

func (b *inbox) end(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endLocked(err)
}

func (b *inbox) endLocked(err error) {
	if b.ended {
		return
	}
	b.ended = true
	b.err = err
	close(b.done)
}

func (b *inbox) push(payload []byte) bool {
	select {
	case b.ch <- payload:
		return true
	case <-b.done:
		return false
	}
}

type receiver struct {
	inbox  *inbox
	closed atomic.Bool
}

func (r *receiver) Recv(ctx context.Context) ([]byte, error) {
	if r.closed.Load() {
		return nil, link.ErrClosed
	}

	select {
	case payload := <-r.inbox.ch:
		return payload, nil
	case <-r.inbox.done:
		select {
		case payload := <-r.inbox.ch:
			return payload, nil
		default:
			return nil, r.inbox.err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *receiver) Close() error {
	r.closed.Store(true)
	return nil
}
