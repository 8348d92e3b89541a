package mocklink

import (
	"context"

	"github.com/hugolhafner/easyflow/link"
	"github.com/hugolhafner/easyflow/topology"
	"github.com/stretchr/testify/mock"
)

var (
	_ link.Sender    = (*Sender)(nil)
	_ link.Receiver  = (*Receiver)(nil)
	_ link.Transport = (*Transport)(nil)
)

type Sender struct {
	mock.Mock
}

func (s *Sender) Send(ctx context.Context, payload []byte) error {
	args := s.Called(ctx, payload)
	return args.Error(0)
}

func (s *Sender) Close() error {
	args := s.Called()
	return args.Error(0)
}

type Receiver struct {
	mock.Mock
}

func (r *Receiver) Recv(ctx context.Context) ([]byte, error) {
	args := r.Called(ctx)

	var payload []byte
	if p := args.Get(0); p != nil {
		payload = p.([]byte)
	}
	return payload, args.Error(1)
}

func (r *Receiver) Close() error {
	args := r.Called()
	return args.Error(0)
}

type Transport struct {
	mock.Mock
}

func (t *Transport) Sender(ctx context.Context, edge topology.Edge) (link.Sender, error) {
	args := t.Called(ctx, edge)

	var s link.Sender
	if v := args.Get(0); v != nil {
		s = v.(link.Sender)
	}
	return s, args.Error(1)
}

func (t *Transport) Receiver(ctx context.Context, edge topology.Edge) (link.Receiver, error) {
	args := t.Called(ctx, edge)

	var r link.Receiver
	if v := args.Get(0); v != nil {
		r = v.(link.Receiver)
	}
	return r, args.Error(1)
}

func (t *Transport) Close() error {
	args := t.Called()
	return args.Error(0)
}
