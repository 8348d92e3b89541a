package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/easyflow"

// Telemetry holds all OpenTelemetry instruments for the easyflow library
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer trace.Tracer

	// Sender metrics
	MessagesSent metric.Int64Counter
	SendDuration metric.Float64Histogram

	// Listener metrics
	MessagesDelivered metric.Int64Counter
	DeliverDuration   metric.Float64Histogram
	ListenersActive   metric.Int64UpDownCounter

	Errors metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)

	messagesSent, err := meter.Int64Counter(
		"flow.sender.messages",
		metric.WithDescription("Payloads handed to a transport"),
	)
	if err != nil {
		return nil, err
	}

	sendDuration, err := meter.Float64Histogram(
		"flow.send.duration",
		metric.WithDescription("Time per Send() call, including backpressure"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	messagesDelivered, err := meter.Int64Counter(
		"flow.listener.messages",
		metric.WithDescription("Payloads delivered to listener callbacks"),
	)
	if err != nil {
		return nil, err
	}

	deliverDuration, err := meter.Float64Histogram(
		"flow.deliver.duration",
		metric.WithDescription("Time spent in listener callbacks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	listenersActive, err := meter.Int64UpDownCounter(
		"flow.listeners.active",
		metric.WithDescription("Listeners whose delivery loop is running"),
	)
	if err != nil {
		return nil, err
	}

	errors, err := meter.Int64Counter(
		"flow.errors",
		metric.WithDescription("Send, receive and callback errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:            tracer,
		MessagesSent:      messagesSent,
		SendDuration:      sendDuration,
		MessagesDelivered: messagesDelivered,
		DeliverDuration:   deliverDuration,
		ListenersActive:   listenersActive,
		Errors:            errors,
	}, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil)
	return t
}
