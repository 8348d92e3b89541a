package listener

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCancelled
	StateStreamEnded
	StateReceiveFailed
	StateCallbackFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateStreamEnded:
		return "stream_ended"
	case StateReceiveFailed:
		return "receive_failed"
	case StateCallbackFailed:
		return "callback_failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the delivery loop has exited in this state.
func (s State) Terminal() bool {
	return s >= StateCancelled
}

// Failed reports whether the loop exited with an error.
func (s State) Failed() bool {
	return s == StateReceiveFailed || s == StateCallbackFailed
}
