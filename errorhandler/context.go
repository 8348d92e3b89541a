package errorhandler

// ErrorContext describes a failed callback invocation. It carries everything a
// handler needs to decide what the listener does next.
type ErrorContext struct {
	// Node is the name of the receiving node whose callback failed.
	Node string

	// Payload is a copy of the message the callback was handling.
	Payload []byte

	Error error

	// Attempt is current attempt number, 1 indexed.
	Attempt int
}

func NewErrorContext(node string, payload []byte, err error) ErrorContext {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	return ErrorContext{
		Node:    node,
		Payload: cp,
		Error:   err,
		Attempt: 1,
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}
