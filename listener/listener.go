// Package listener couples a Receiver with a callback and runs the delivery
// loop on a worker pool until the stream ends, the listener is cancelled, or
// the transport or callback fails.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hugolhafner/easyflow/errorhandler"
	"github.com/hugolhafner/easyflow/link"
	"github.com/hugolhafner/easyflow/logger"
	flowotel "github.com/hugolhafner/easyflow/otel"
	"github.com/hugolhafner/easyflow/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Callback handles one payload. It runs on a pool goroutine while the
// listener's execution lock is held; ctx is cancelled once the listener is.
type Callback func(ctx context.Context, payload []byte) error

// Listener is the owner's handle on a running delivery loop. Dropping the last
// reference to a Listener without closing it cancels the loop once the garbage
// collector notices; call Close (or Cancel) to stop it deterministically.
type Listener struct {
	*loop

	handle  *pool.Handle
	cleanup runtime.Cleanup
}

// loop is the state shared between the owner and the pool goroutine. It must
// never point back at its Listener.
type loop struct {
	id       uuid.UUID
	node     string
	receiver link.Receiver
	callback Callback
	token    *Token

	config Config
	logger logger.Logger
	tel    *flowotel.Telemetry
	attrs  []attribute.KeyValue

	state  atomic.Int32
	closed atomic.Bool
}

// New submits a delivery loop for receiver to the configured pool and returns
// immediately. The listener takes ownership of receiver and closes it when the
// loop exits.
func New(node string, receiver link.Receiver, callback Callback, opts ...Option) *Listener {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.New()
	lp := &loop{
		id:       id,
		node:     node,
		receiver: receiver,
		callback: callback,
		token:    NewToken(),
		config:   cfg,
		logger:   cfg.Logger.With("component", "listener", "node", node, "listener", id.String()),
		tel:      cfg.Telemetry,
		attrs: []attribute.KeyValue{
			flowotel.AttrNode.String(node),
		},
	}

	lp.state.Store(int32(StateRunning))
	l := &Listener{
		loop:   lp,
		handle: cfg.Pool.Submit(lp.run),
	}
	l.cleanup = runtime.AddCleanup(l, func(t *Token) { t.Cancel() }, lp.token)

	lp.logger.Debug("Listener started")
	return l
}

func (l *Listener) ID() uuid.UUID {
	return l.id
}

func (l *Listener) Node() string {
	return l.node
}

func (l *Listener) State() State {
	return State(l.state.Load())
}

// Token returns the listener's cancellation token, for handing to other
// owners that may need to stop it.
func (l *Listener) Token() *Token {
	return l.token
}

// Cancel asks the loop to stop. It does not wait; the loop exits at its next
// suspension point, or after the callback in flight returns.
func (l *Listener) Cancel() {
	l.token.Cancel()
}

func (l *Listener) Terminate() {
	l.Cancel()
}

// IsClosed reports whether the loop has exited, for any reason. Only Wait
// tells a clean exit from a failed one.
func (l *Listener) IsClosed() bool {
	return l.closed.Load()
}

// Done is closed when the loop has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.handle.Done()
}

// Wait blocks until the loop exits and returns its error. The outcome is
// handed out once; later calls return nil.
func (l *Listener) Wait() error {
	return l.handle.Wait()
}

// WaitContext is Wait bounded by ctx. Giving up on ctx leaves the outcome for
// a later call.
func (l *Listener) WaitContext(ctx context.Context) error {
	return l.handle.WaitContext(ctx)
}

// Close cancels the listener without waiting for it. It is safe to call
// more than once.
func (l *Listener) Close() error {
	l.cleanup.Stop()
	l.Cancel()
	return nil
}

func (lp *loop) run() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		select {
		case <-lp.token.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	lp.tel.ListenersActive.Add(ctx, 1, metric.WithAttributes(lp.attrs...))
	defer lp.tel.ListenersActive.Add(context.Background(), -1, metric.WithAttributes(lp.attrs...))

	state, err := lp.deliver(ctx)

	if cerr := lp.receiver.Close(); cerr != nil {
		lp.logger.Warn("Failed to close receiver", "error", cerr)
	}

	lp.state.Store(int32(state))
	lp.closed.Store(true)

	if err != nil {
		lp.logger.Error("Error occurred on node, call Wait to retrieve the error", "state", state.String(), "error", err)
		return err
	}

	lp.logger.Debug("Listener stopped", "state", state.String())
	return nil
}

func (lp *loop) deliver(ctx context.Context) (State, error) {
	for {
		if lp.token.TryAcquire() {
			return StateCancelled, nil
		}

		payload, err := lp.receiver.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return StateStreamEnded, nil
			}
			// the token is the only thing that cancels ctx
			if lp.token.TryAcquire() {
				return StateCancelled, nil
			}

			lp.tel.Errors.Add(
				ctx, 1, metric.WithAttributes(
					flowotel.AttrNode.String(lp.node),
					flowotel.AttrErrorKind.String(flowotel.ErrorKindReceive),
				),
			)
			return StateReceiveFailed, NewReceiveError(err, lp.node)
		}

		if state, err := lp.dispatch(ctx, payload); state != StateRunning {
			return state, err
		}
	}
}

// dispatch hands payload to the callback, consulting the error handler until
// it succeeds, is skipped, or fails the listener. It returns StateRunning while
// the loop should carry on.
func (lp *loop) dispatch(ctx context.Context, payload []byte) (State, error) {
	start := time.Now()
	ctx, span := lp.tel.Tracer.Start(
		ctx, lp.node+" deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			flowotel.AttrNode.String(lp.node),
			flowotel.AttrListener.String(lp.id.String()),
			attribute.Int("flow.message.size", len(payload)),
		),
	)
	defer span.End()

	recordStatus := func(status string, attempt int) {
		span.SetAttributes(attribute.Int("flow.deliver.attempts", attempt))
		lp.tel.DeliverDuration.Record(
			ctx, time.Since(start).Seconds(), metric.WithAttributes(
				flowotel.AttrNode.String(lp.node),
				flowotel.AttrDeliverStatus.String(status),
			),
		)
		lp.tel.MessagesDelivered.Add(
			ctx, 1, metric.WithAttributes(
				flowotel.AttrNode.String(lp.node),
				flowotel.AttrDeliverStatus.String(status),
			),
		)
	}

	attempt := 1

	for {
		err := lp.invoke(ctx, payload)
		if err == nil {
			recordStatus(flowotel.StatusSuccess, attempt)
			return StateRunning, nil
		}

		ec := errorhandler.NewErrorContext(lp.node, payload, err).WithAttempt(attempt)

		span.RecordError(err)
		lp.tel.Errors.Add(
			ctx, 1, metric.WithAttributes(
				flowotel.AttrNode.String(lp.node),
				flowotel.AttrErrorKind.String(flowotel.ErrorKindCallback),
			),
		)

		action := lp.config.ErrorHandler.Handle(ctx, ec)

		// a cancellation requested before or while the handler decides, during
		// a retry backoff for example, wins over the handler's verdict
		if lp.token.TryAcquire() {
			lp.logger.Debug("Cancelled while handling a failed message", "attempt", ec.Attempt, "error", err)
			recordStatus(flowotel.StatusCancelled, ec.Attempt)
			return StateCancelled, nil
		}

		span.SetAttributes(flowotel.AttrErrorAction.String(action.Type().String()))

		switch action.Type() {
		case errorhandler.ActionTypeContinue:
			lp.logger.Debug("Skipping failed message", "attempt", ec.Attempt, "error", err)
			recordStatus(flowotel.StatusSkipped, ec.Attempt)
			return StateRunning, nil

		case errorhandler.ActionTypeRetry:
			lp.logger.Debug("Retrying message", "attempt", ec.Attempt, "error", err)
			attempt++

			if attempt%10 == 0 {
				lp.logger.Warn(
					"Message seen high number of retry attempts, consider allowing the error handler to skip it.",
					"attempt", attempt,
				)
			}
			continue

		case errorhandler.ActionTypeFail:
			recordStatus(flowotel.StatusFailed, ec.Attempt)
			span.SetStatus(codes.Error, err.Error())
			return StateCallbackFailed, NewCallbackError(err, lp.node)

		default:
			lp.logger.Error(
				"Unknown error handler action, failing listener",
				"action", action.Type().String(),
				"error", err,
			)
			recordStatus(flowotel.StatusFailed, ec.Attempt)
			span.SetStatus(codes.Error, err.Error())
			return StateCallbackFailed, NewCallbackError(err, lp.node)
		}
	}
}

func (lp *loop) invoke(ctx context.Context, payload []byte) (err error) {
	lp.config.Lock.Lock()
	defer lp.config.Lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	return lp.callback(ctx, payload)
}
