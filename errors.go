package easyflow

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrUnknownEdge   = errors.New("unknown edge")
	ErrNoDefaultEdge = errors.New("node has no edge in that direction")
	ErrClosed        = errors.New("graph is closed")
)

// OpenError is returned when a graph description cannot be read or is not a
// valid graph.
type OpenError struct {
	Cause error
	Path  string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open graph %s: %v", e.Path, e.Cause)
}

func (e *OpenError) Unwrap() error {
	return e.Cause
}

func AsOpenError(err error) (*OpenError, bool) {
	var oe *OpenError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// ResolutionError is returned when a node name, optionally qualified by a
// peer, cannot be turned into a live endpoint.
type ResolutionError struct {
	Cause error
	Node  string
	Peer  string
}

func (e *ResolutionError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("resolve node %q with peer %q: %v", e.Node, e.Peer, e.Cause)
	}
	return fmt.Sprintf("resolve node %q: %v", e.Node, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

func AsResolutionError(err error) (*ResolutionError, bool) {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// SendError wraps a transport failure during Send. Sends are never retried.
type SendError struct {
	Cause error
	Node  string
	Peer  string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s->%s: %v", e.Node, e.Peer, e.Cause)
}

func (e *SendError) Unwrap() error {
	return e.Cause
}

func AsSendError(err error) (*SendError, bool) {
	var se *SendError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
