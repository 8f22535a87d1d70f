package exec

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/orogen/orogen/internal/task"
)

// UnitState is the availability state of an execution unit.
type UnitState int32

const (
	// UnitStarting means the unit is spawned but has not confirmed readiness.
	UnitStarting UnitState = iota
	// UnitIdle means the unit is available for acquisition.
	UnitIdle
	// UnitBusy means the unit is bound to exactly one in-flight request.
	UnitBusy
	// UnitFailed means the unit hit an unrecoverable fault and left the pool.
	UnitFailed
	// UnitStopped means the unit was terminated by pool shutdown.
	UnitStopped
)

func (s UnitState) String() string {
	switch s {
	case UnitStarting:
		return "starting"
	case UnitIdle:
		return "idle"
	case UnitBusy:
		return "busy"
	case UnitFailed:
		return "failed"
	case UnitStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// submission pairs an inbound request with the target observing it.
type submission struct {
	req    Request
	target *Target
}

// Unit is one execution unit: an independently scheduled worker serving
// at most one request at a time. Its run loop implements the protocol
// state machine: receive request, reject if busy, resolve the task body,
// run it, emit exactly one terminal message, become idle again.
type Unit struct {
	id       uuid.UUID
	registry *task.Registry
	logger   *slog.Logger

	state       atomic.Int32
	submissions chan submission
	ready       chan struct{}
	done        chan struct{}

	// activeID and activeTarget identify the request currently being
	// served; progress emissions for any other id are rejected.
	activeID     atomic.Int64
	activeTarget atomic.Pointer[Target]

	// idCounter is touched only by the run loop. It wraps back to zero
	// at MaxInt64, so id uniqueness holds only within one non-wrapped
	// epoch.
	idCounter int64

	onFault func(u *Unit, err error)
}

// NewUnit creates a unit bound to a task registry. The unit does nothing
// until its Run loop is started.
func NewUnit(registry *task.Registry, logger *slog.Logger) *Unit {
	id := uuid.New()
	u := &Unit{
		id:          id,
		registry:    registry,
		logger:      logger.With("unit_id", id.String()),
		submissions: make(chan submission),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
	u.activeID.Store(-1)
	return u
}

// ID returns the unit's identity.
func (u *Unit) ID() uuid.UUID { return u.id }

// State returns the unit's current availability state.
func (u *Unit) State() UnitState {
	return UnitState(u.state.Load())
}

// Ready returns a channel closed once the unit's run loop has started,
// the in-process equivalent of the unsolicited "ready" message.
func (u *Unit) Ready() <-chan struct{} {
	return u.ready
}

// SetFaultHandler installs the callback invoked when the unit hits an
// unrecoverable fault. Must be called before Run.
func (u *Unit) SetFaultHandler(fn func(u *Unit, err error)) {
	u.onFault = fn
}

// Submit delivers a request to the unit and returns the target observing
// it. A request reaching a busy unit is answered with an immediate
// terminal "busy" error while the in-flight request continues untouched;
// a failed or stopped unit answers with an unavailability error.
func (u *Unit) Submit(req Request) *Target {
	if !u.state.CompareAndSwap(int32(UnitIdle), int32(UnitBusy)) {
		switch u.State() {
		case UnitBusy:
			return failedTarget("unit is busy")
		default:
			return failedTarget(fmt.Sprintf("unit is %s", u.State()))
		}
	}

	t := NewTarget()
	// The CAS above guarantees the run loop is parked on the receive,
	// unless shutdown raced in between.
	select {
	case u.submissions <- submission{req: req, target: t}:
		return t
	case <-u.done:
		return failedTarget("unit is stopped")
	}
}

// Run executes the unit's protocol loop until ctx is cancelled. It is
// meant to be started as its own goroutine by the pool. An internal panic
// outside a task body moves the unit to the unrecoverable state and
// reports the fault.
func (u *Unit) Run(ctx context.Context) {
	defer close(u.done)
	defer func() {
		if r := recover(); r != nil {
			u.fail(fmt.Errorf("unit run loop panicked: %v", r))
		}
	}()

	u.state.Store(int32(UnitIdle))
	close(u.ready)
	u.logger.Debug("unit ready")

	for {
		select {
		case <-ctx.Done():
			// A fault state is permanent; only live states become stopped.
			u.state.CompareAndSwap(int32(UnitIdle), int32(UnitStopped))
			u.state.CompareAndSwap(int32(UnitBusy), int32(UnitStopped))
			u.logger.Debug("unit stopped")
			return
		case sub := <-u.submissions:
			u.serve(sub)
		}
	}
}

// serve runs one request to its terminal message. State reset happens in
// a deferred block so a panicking task body cannot leave the unit stuck
// busy or the request without a terminal message.
func (u *Unit) serve(sub submission) {
	id := u.nextID()
	u.activeID.Store(id)
	u.activeTarget.Store(sub.target)

	logger := u.logger.With("request_id", id, "task_type", sub.req.Type)

	var tctx *task.Context
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task body panicked", "panic", r)
			msg := Message{Kind: KindError, Error: fmt.Sprintf("task panicked: %v", r)}
			if tctx != nil {
				msg.Duration = tctx.Elapsed()
			}
			sub.target.deliver(msg)
		}
		u.activeID.Store(-1)
		u.activeTarget.Store(nil)
		// CAS so a concurrent Fail cannot be overwritten back to idle.
		u.state.CompareAndSwap(int32(UnitBusy), int32(UnitIdle))
	}()

	fn, err := u.registry.Resolve(sub.req.Type)
	if err != nil {
		logger.Debug("task resolution failed", "error", err)
		sub.target.deliver(Message{Kind: KindError, Error: err.Error()})
		return
	}

	sub.target.deliver(Message{Kind: KindStart})
	tctx = task.NewContext(id, sub.req.Payload, u)

	result, err := fn(tctx)
	elapsed := tctx.Elapsed()

	if err != nil {
		logger.Debug("task failed", "error", err, "duration", elapsed)
		sub.target.deliver(Message{Kind: KindError, Error: err.Error(), Duration: elapsed})
	} else {
		logger.Debug("task completed", "duration", elapsed)
		sub.target.deliver(Message{
			Kind:     KindResult,
			Result:   result,
			Duration: elapsed,
			Buffers:  tctx.MarkedBuffers(),
		})
	}
}

// EmitProgress implements task.ProgressSink. Emissions from a context
// whose id is no longer the unit's current busy id are rejected, guarding
// against stale contexts outliving their request.
func (u *Unit) EmitProgress(id int64, detail any, elapsed time.Duration) error {
	if u.State() != UnitBusy || u.activeID.Load() != id {
		return task.ErrInactiveTask
	}
	t := u.activeTarget.Load()
	if t == nil {
		return task.ErrInactiveTask
	}
	t.deliver(Message{Kind: KindProgress, Progress: detail, Duration: elapsed})
	return nil
}

// Fail moves the unit to the unrecoverable state and reports the fault to
// the pool. Any request the unit was serving is left without a terminal
// message from the pool's perspective.
func (u *Unit) Fail(err error) {
	u.fail(err)
}

func (u *Unit) fail(err error) {
	u.state.Store(int32(UnitFailed))
	u.logger.Error("unit fault", "error", err)
	if u.onFault != nil {
		u.onFault(u, err)
	}
}

// nextID hands out request ids from a monotonically increasing counter,
// wrapping back to zero at MaxInt64 instead of overflowing.
func (u *Unit) nextID() int64 {
	id := u.idCounter
	if u.idCounter == math.MaxInt64 {
		u.idCounter = 0
	} else {
		u.idCounter++
	}
	return id
}
