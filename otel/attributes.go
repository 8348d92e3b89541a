package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrNode          = attribute.Key("flow.node")
	AttrPeer          = attribute.Key("flow.peer")
	AttrEdge          = attribute.Key("flow.edge")
	AttrListener      = attribute.Key("flow.listener.id")
	AttrErrorKind     = attribute.Key("flow.error.kind")
	AttrErrorAction   = attribute.Key("flow.error.action")
	AttrDeliverStatus = attribute.Key("flow.deliver.status")
	AttrTerminalState = attribute.Key("flow.listener.state")
)

// Error kind values
const (
	ErrorKindSend     = "send"
	ErrorKindReceive  = "receive"
	ErrorKindCallback = "callback"
)

// Deliver status values
const (
	StatusSuccess   = "success"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)
