package listener

import (
	"errors"
	"fmt"
)

// ReceiveError is returned by Wait when the transport failed while the loop
// was waiting for the next payload.
type ReceiveError struct {
	Cause error
	Node  string
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive on node %q: %v", e.Node, e.Cause)
}

func (e *ReceiveError) Unwrap() error {
	return e.Cause
}

func NewReceiveError(cause error, node string) error {
	return &ReceiveError{Cause: cause, Node: node}
}

func AsReceiveError(err error) (*ReceiveError, bool) {
	var re *ReceiveError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// CallbackError wraps the error a callback returned for a payload.
type CallbackError struct {
	Cause error
	Node  string
}

func (e *CallbackError) Error() string {
	return e.Cause.Error()
}

func (e *CallbackError) Unwrap() error {
	return e.Cause
}

func NewCallbackError(cause error, node string) error {
	return &CallbackError{Cause: cause, Node: node}
}

func AsCallbackError(err error) (*CallbackError, bool) {
	var ce *CallbackError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
