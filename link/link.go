// Package link defines the channel endpoints nodes use to exchange byte
// payloads, independent of the transport that carries them.
package link

import (
	"context"
	"errors"

	"github.com/hugolhafner/easyflow/topology"
)

// ErrClosed is returned by Send once the sender or its transport is closed.
var ErrClosed = errors.New("link closed")

// Sender owns write access to one outgoing channel. It is not safe for
// concurrent use.
type Sender interface {
	// Send blocks while the transport applies backpressure.
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Receiver owns read access to one incoming channel.
type Receiver interface {
	// Recv returns the next payload. io.EOF signals that the far end closed
	// the channel for good. Recv returns ctx.Err() promptly once ctx is done.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport realises graph edges as Sender/Receiver pairs. Building an
// endpoint may involve a handshake with the peer, hence the context.
type Transport interface {
	Sender(ctx context.Context, edge topology.Edge) (Sender, error)
	Receiver(ctx context.Context, edge topology.Edge) (Receiver, error)
	Close() error
}
