package listener

import (
	"sync"
	"sync/atomic"
)

// Token is a counting permit gate. Any holder may add a permit with Cancel;
// the delivery loop takes one permit to stop. Extra permits are harmless and
// a token is never reset, so each listener gets its own.
type Token struct {
	permits atomic.Int64
	once    sync.Once
	done    chan struct{}
}

func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel adds one permit. It never blocks and may be called any number of
// times from any goroutine.
func (t *Token) Cancel() {
	t.permits.Add(1)
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the first permit has been added.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// TryAcquire takes one permit without blocking.
func (t *Token) TryAcquire() bool {
	for {
		n := t.permits.Load()
		if n <= 0 {
			return false
		}
		if t.permits.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (t *Token) Permits() int64 {
	return t.permits.Load()
}
