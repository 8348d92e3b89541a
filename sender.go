package easyflow

import (
	"context"
	"fmt"
	"time"

	"github.com/hugolhafner/easyflow/link"
	flowotel "github.com/hugolhafner/easyflow/otel"
	"github.com/hugolhafner/easyflow/serde"
	"github.com/hugolhafner/easyflow/topology"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Sender writes to one outgoing edge. Like the link.Sender it wraps, it is
// not safe for concurrent use.
type Sender struct {
	link  link.Sender
	edge  topology.Edge
	tel   *flowotel.Telemetry
	attrs metric.MeasurementOption
}

func newSender(s link.Sender, edge topology.Edge, tel *flowotel.Telemetry) *Sender {
	if tel == nil {
		tel = flowotel.Noop()
	}

	return &Sender{
		link: s,
		edge: edge,
		tel:  tel,
		attrs: metric.WithAttributes(
			flowotel.AttrNode.String(edge.From),
			flowotel.AttrPeer.String(edge.To),
		),
	}
}

func (s *Sender) Edge() topology.Edge {
	return s.edge
}

// Send transmits payload, blocking while the transport is saturated. Any
// transport failure, including a closed channel, is returned as a *SendError.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	start := time.Now()
	ctx, span := s.tel.Tracer.Start(
		ctx, s.edge.From+" send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			flowotel.AttrNode.String(s.edge.From),
			flowotel.AttrPeer.String(s.edge.To),
			attribute.Int("flow.message.size", len(payload)),
		),
	)
	defer span.End()

	err := s.link.Send(ctx, payload)
	s.tel.SendDuration.Record(ctx, time.Since(start).Seconds(), s.attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.Errors.Add(
			ctx, 1, metric.WithAttributes(
				flowotel.AttrNode.String(s.edge.From),
				flowotel.AttrErrorKind.String(flowotel.ErrorKindSend),
			),
		)
		return &SendError{Cause: err, Node: s.edge.From, Peer: s.edge.To}
	}

	s.tel.MessagesSent.Add(ctx, 1, s.attrs)
	return nil
}

// Close ends the stream on this edge once no other sender holds it open.
func (s *Sender) Close() error {
	return s.link.Close()
}

// SendValue serialises value with ser and sends it.
func SendValue[T any](ctx context.Context, s *Sender, ser serde.Serialiser[T], value T) error {
	payload, err := ser.Serialise(value)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return s.Send(ctx, payload)
}
