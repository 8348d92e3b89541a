// Package memory implements an in-process transport backed by buffered Go
// channels, one per edge.
package memory

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hugolhafner/easyflow/link"
	"github.com/hugolhafner/easyflow/topology"
)

var _ link.Transport = (*Transport)(nil)

const defaultCapacity = 64

type Option func(*Transport)

// WithCapacity sets how many payloads an edge buffers before Send blocks.
func WithCapacity(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.capacity = n
		}
	}
}

type Transport struct {
	capacity int

	mu     sync.Mutex
	pipes  map[string]*pipe
	closed bool
}

func New(opts ...Option) *Transport {
	t := &Transport{
		capacity: defaultCapacity,
		pipes:    make(map[string]*pipe),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// pipe is a single edge. It ends once every sender that attached has closed,
// or when the transport is torn down.
type pipe struct {
	ch chan []byte

	mu      sync.Mutex
	senders int
	done    chan struct{}
	ended   bool
}

func newPipe(capacity int) *pipe {
	return &pipe{
		ch:   make(chan []byte, capacity),
		done: make(chan struct{}),
	}
}

func (p *pipe) attachSender() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ended {
		return false
	}
	p.senders++
	return true
}

func (p *pipe) detachSender() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.senders--
	if p.senders == 0 {
		p.endLocked()
	}
}

func (p *pipe) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLocked()
}

func (p *pipe) endLocked() {
	if p.ended {
		return
	}
	p.ended = true
	close(p.done)
}

// pipeFor returns the live pipe for edge, replacing one whose stream already
// ended when fresh is set.
func (t *Transport) pipeFor(edge topology.Edge, fresh bool) (*pipe, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, link.ErrClosed
	}

	p, ok := t.pipes[edge.ID()]
	if ok && fresh {
		p.mu.Lock()
		ended := p.ended
		p.mu.Unlock()
		ok = !ended
	}
	if !ok {
		p = newPipe(t.capacity)
		t.pipes[edge.ID()] = p
	}
	return p, nil
}

func (t *Transport) Sender(_ context.Context, edge topology.Edge) (link.Sender, error) {
	for {
		p, err := t.pipeFor(edge, true)
		if err != nil {
			return nil, err
		}
		// the pipe may end between lookup and attach; look again
		if p.attachSender() {
			return &sender{pipe: p}, nil
		}
	}
}

func (t *Transport) Receiver(_ context.Context, edge topology.Edge) (link.Receiver, error) {
	p, err := t.pipeFor(edge, false)
	if err != nil {
		return nil, err
	}
	return &receiver{pipe: p}, nil
}

// Close ends every edge. Receivers drain what is buffered and then see io.EOF.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for _, p := range t.pipes {
		p.end()
	}
	return nil
}

type sender struct {
	pipe   *pipe
	closed atomic.Bool
}

func (s *sender) Send(ctx context.Context, payload []byte) error {
	if s.closed.Load() {
		return link.ErrClosed
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case <-s.pipe.done:
		return link.ErrClosed
	default:
	}

	select {
	case s.pipe.ch <- buf:
		return nil
	case <-s.pipe.done:
		return link.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sender) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.pipe.detachSender()
	}
	return nil
}

type receiver struct {
	pipe   *pipe
	closed atomic.Bool
}

func (r *receiver) Recv(ctx context.Context) ([]byte, error) {
	if r.closed.Load() {
		return nil, link.ErrClosed
	}

	select {
	case payload := <-r.pipe.ch:
		return payload, nil
	case <-r.pipe.done:
		// buffered payloads are still delivered after the stream ended
		select {
		case payload := <-r.pipe.ch:
			return payload, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *receiver) Close() error {
	r.closed.Store(true)
	return nil
}
