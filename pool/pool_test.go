//go:build unit

package pool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugolhafner/easyflow/pool"
	"github.com/stretchr/testify/require"
)

func TestHandle_WaitIsConsuming(t *testing.T) {
	p := pool.New()
	boom := errors.New("boom")

	h := p.Submit(func() error { return boom })

	require.ErrorIs(t, h.Wait(), boom)
	require.NoError(t, h.Wait(), "second wait has nothing left to report")
	require.NoError(t, h.Wait())
}

func TestHandle_WaitContextDoesNotConsumeOnTimeout(t *testing.T) {
	p := pool.New()
	release := make(chan struct{})
	boom := errors.New("boom")

	h := p.Submit(func() error {
		<-release
		return boom
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.WaitContext(ctx), context.DeadlineExceeded)

	close(release)
	require.ErrorIs(t, h.Wait(), boom)
}

func TestHandle_DoneClosesOnCompletion(t *testing.T) {
	p := pool.New()
	h := p.Submit(func() error { return nil })

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not complete")
	}
	require.NoError(t, h.Wait())
}

func TestPool_RecoversPanics(t *testing.T) {
	p := pool.New()
	h := p.Submit(func() error { panic("kaboom") })

	require.ErrorContains(t, h.Wait(), "panic recovered: kaboom")
}

func TestPool_MaxConcurrency(t *testing.T) {
	p := pool.New(pool.WithMaxConcurrency(2))

	release := make(chan struct{})
	var running, peak atomic.Int64

	handles := make([]*pool.Handle, 0, 5)
	for range 5 {
		handles = append(
			handles, p.Submit(func() error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return nil
			}),
		)
	}

	require.Eventually(t, func() bool { return p.Active() == 2 }, time.Second, 5*time.Millisecond)
	close(release)

	for _, h := range handles {
		require.NoError(t, h.Wait())
	}
	require.EqualValues(t, 2, peak.Load())
	require.Zero(t, p.Active())
}

func TestDefault_IsShared(t *testing.T) {
	require.Same(t, pool.Default(), pool.Default())
}

func TestHandle_ConcurrentWaitersKeepTheirDeadlines(t *testing.T) {
	p := pool.New()
	release := make(chan struct{})
	boom := errors.New("boom")

	h := p.Submit(func() error {
		<-release
		return boom
	})

	waitErr := make(chan error, 1)
	go func() { waitErr <- h.Wait() }()

	// let the blocking Wait get in first
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.ErrorIs(t, h.WaitContext(ctx), context.DeadlineExceeded)
	require.Less(t, time.Since(start), 500*time.Millisecond, "WaitContext must not queue behind Wait")

	close(release)
	require.ErrorIs(t, <-waitErr, boom)
	require.NoError(t, h.WaitContext(context.Background()), "result was already taken")
}
