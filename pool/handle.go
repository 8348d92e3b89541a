package pool

import (
	"context"
	"sync"
)

// Handle is the completion handle of a submitted task. Its result can be
// taken exactly once; later waits return nil without blocking.
type Handle struct {
	done chan struct{}
	err  error

	mu       sync.Mutex
	consumed bool
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done is closed once the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Wait() error {
	return h.WaitContext(context.Background())
}

// WaitContext blocks until the task finishes or ctx is done. Giving up on ctx
// does not consume the result. Concurrent waiters each honour their own ctx;
// exactly one of them receives the result.
func (h *Handle) WaitContext(ctx context.Context) error {
	select {
	case <-h.done:
		return h.take()
	default:
	}

	select {
	case <-h.done:
		return h.take()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) take() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consumed {
		return nil
	}
	h.consumed = true
	return h.err
}
