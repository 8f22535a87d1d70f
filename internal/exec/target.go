package exec

import (
	"context"
	"errors"
	"time"

	"github.com/orogen/orogen/internal/async"
	"github.com/orogen/orogen/internal/grid"
)

// ErrMalformedMessage is the terminal error surfaced when a unit delivers
// a message the target cannot decode.
var ErrMalformedMessage = errors.New("unrecognized message from execution unit")

// progressBufferSize bounds the progress channel. Emissions beyond an
// unread backlog of this size are dropped rather than blocking the unit.
const progressBufferSize = 32

// Progress is one progress notification from a running task.
type Progress struct {
	Detail  any
	Elapsed time.Duration
}

// Result is the successful terminal outcome of one request. Buffers holds
// the grid buffers the task marked for zero-copy hand-off; the caller
// owns them from here on.
type Result struct {
	Value   any
	Buffers []*grid.Buffer
	Elapsed time.Duration
}

// Target observes one outstanding request. Events arrive in order: zero
// or one start, zero or more progress notifications (monotonic in
// emission order), then exactly one terminal result or error. After the
// terminal event no further events fire; the progress channel is closed.
type Target struct {
	start    *async.Deferred[struct{}]
	progress chan Progress
	terminal *async.Deferred[Result]
}

// NewTarget creates a target awaiting its request's events.
func NewTarget() *Target {
	return &Target{
		start:    async.NewDeferred[struct{}](),
		progress: make(chan Progress, progressBufferSize),
		terminal: async.NewDeferred[Result](),
	}
}

// Started returns a channel closed once the unit has accepted the request
// and begun executing it.
func (t *Target) Started() <-chan struct{} {
	return t.start.Done()
}

// Progress returns the ordered progress stream. The channel is closed
// after the terminal event.
func (t *Target) Progress() <-chan Progress {
	return t.progress
}

// Done returns a channel closed when the terminal event has fired.
func (t *Target) Done() <-chan struct{} {
	return t.terminal.Done()
}

// Wait blocks until the request's terminal event or ctx expiry. A context
// error stops the waiting only; the unit keeps executing until it emits
// its terminal message.
func (t *Target) Wait(ctx context.Context) (Result, error) {
	return t.terminal.Await(ctx)
}

// deliver routes one inbound message to the target's observers. Messages
// for a settled target are ignored, keeping "exactly one terminal event"
// true even against a misbehaving sender. An unknown kind terminates the
// request with ErrMalformedMessage.
func (t *Target) deliver(msg Message) {
	switch msg.Kind {
	case KindStart:
		t.start.Resolve(struct{}{})
	case KindProgress:
		if t.terminal.Settled() {
			return
		}
		select {
		case t.progress <- Progress{Detail: msg.Progress, Elapsed: msg.Duration}:
		default:
			// Reader is not keeping up; dropping is preferable to
			// stalling the unit.
		}
	case KindResult:
		if t.terminal.Resolve(Result{
			Value:   msg.Result,
			Buffers: msg.Buffers,
			Elapsed: msg.Duration,
		}) {
			close(t.progress)
		}
	case KindError:
		if t.terminal.Reject(&TaskError{Message: msg.Error, Duration: msg.Duration}) {
			close(t.progress)
		}
	default:
		if t.terminal.Reject(ErrMalformedMessage) {
			close(t.progress)
		}
	}
}

// failedTarget builds a target that is already terminally failed, used
// for requests rejected before reaching a unit's run loop.
func failedTarget(message string) *Target {
	t := NewTarget()
	t.deliver(Message{Kind: KindError, Error: message})
	return t
}
