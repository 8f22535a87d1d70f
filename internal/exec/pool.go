package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sync/errgroup"

	"github.com/orogen/orogen/internal/async"
)

// Common errors returned by the pool
var (
	ErrPoolClosed      = errors.New("pool is closed")
	ErrNoUnits         = errors.New("pool has no units")
	ErrBacklogFull     = errors.New("pending-acquisition backlog is full")
	ErrNotMember       = errors.New("unit is not a member of the pool")
	ErrInvalidSize     = errors.New("pool size must be a positive integer")
	ErrNegativePending = errors.New("max pending must be non-negative")
)

// UnitFactory builds one execution unit during pool construction. The
// index identifies the spawn slot, for diagnostics only.
type UnitFactory func(index int) (*Unit, error)

// PhaseError wraps a failure from one phase of With, identifying which
// phase failed while preserving the original error as its cause.
type PhaseError struct {
	Phase string // "acquire", "task" or "release"
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Stats is a point-in-time snapshot of pool occupancy. Size counts units
// ever created; Live counts units still usable after fault evictions.
type Stats struct {
	Size    int `json:"size"`
	Live    int `json:"live"`
	Idle    int `json:"idle"`
	Pending int `json:"pending"`
}

// Pool owns a fixed set of execution units, tracks their availability,
// and queues over-capacity acquisitions in FIFO order with an optional
// backlog cap. The idle list, pending queue, and membership set are
// guarded by one mutex; units themselves run as independent goroutines.
type Pool struct {
	mu         sync.Mutex
	members    map[*Unit]struct{}
	idle       []*Unit
	pending    *queue.Queue // of *async.Deferred[*Unit], FIFO
	maxPending int
	size       int
	closed     bool

	cancel context.CancelFunc
	logger *slog.Logger
}

// NewPool spawns size units concurrently via the factory and becomes
// ready only once every unit has confirmed readiness. A non-positive size
// fails immediately; any spawn or handshake failure terminates the
// already-spawned units and surfaces an aggregate error.
func NewPool(ctx context.Context, factory UnitFactory, size int, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size %d: %w", size, ErrInvalidSize)
	}

	unitCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		members:    make(map[*Unit]struct{}, size),
		idle:       make([]*Unit, 0, size),
		pending:    queue.New(),
		maxPending: math.MaxInt,
		size:       size,
		cancel:     cancel,
		logger:     logger.With("component", "exec_pool"),
	}

	units := make([]*Unit, size)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < size; i++ {
		g.Go(func() error {
			u, err := factory(i)
			if err != nil {
				return fmt.Errorf("spawning unit %d: %w", i, err)
			}
			u.SetFaultHandler(p.evict)
			go u.Run(unitCtx)
			select {
			case <-u.Ready():
				units[i] = u
				return nil
			case <-gctx.Done():
				return fmt.Errorf("unit %d readiness handshake interrupted: %w", i, gctx.Err())
			}
		})
	}
	if err := g.Wait(); err != nil {
		cancel()
		return nil, fmt.Errorf("pool construction failed: %w", err)
	}

	for _, u := range units {
		p.members[u] = struct{}{}
		p.idle = append(p.idle, u)
	}
	p.logger.Info("pool ready", "size", size)
	return p, nil
}

// Size returns the number of units ever created for this pool. Faulted
// units still count; use Live for the usable count.
func (p *Pool) Size() int { return p.size }

// Live returns the number of units currently usable.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// MaxPending returns the current backlog cap.
func (p *Pool) MaxPending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxPending
}

// SetMaxPending updates the backlog cap. Negative values are rejected;
// callers already queued are unaffected.
func (p *Pool) SetMaxPending(n int) error {
	if n < 0 {
		return fmt.Errorf("max pending %d: %w", n, ErrNegativePending)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxPending = n
	return nil
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:    p.size,
		Live:    len(p.members),
		Idle:    len(p.idle),
		Pending: p.pending.Length(),
	}
}

// Acquire returns an idle unit, or suspends the caller in FIFO order
// behind earlier waiters until a unit is released. It fails immediately
// when the pool is closed, has no live units, or the backlog is at its
// cap. No ordering is guaranteed among idle units.
func (p *Pool) Acquire(ctx context.Context) (*Unit, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.members) == 0 {
		p.mu.Unlock()
		return nil, ErrNoUnits
	}
	if n := len(p.idle); n > 0 {
		u := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return u, nil
	}
	if p.pending.Length() >= p.maxPending {
		p.mu.Unlock()
		return nil, fmt.Errorf("backlog at cap %d: %w", p.maxPending, ErrBacklogFull)
	}
	d := async.NewDeferred[*Unit]()
	p.pending.Add(d)
	p.mu.Unlock()

	u, err := d.Await(ctx)
	if err == nil {
		return u, err
	}
	// The wait was abandoned. Settle the future so Release skips this
	// entry; if a unit raced in first, hand it straight back.
	if !d.Reject(err) {
		if u, awaitErr := d.Await(context.Background()); awaitErr == nil {
			if relErr := p.Release(u); relErr != nil {
				p.logger.Error("failed to requeue unit after abandoned acquire",
					"unit_id", u.ID(), "error", relErr)
			}
		}
	}
	return nil, err
}

// Release returns a unit to the pool. If callers are waiting, the unit
// moves straight to the oldest pending one without passing through the
// idle list; fulfillment happens through the future's channel, so the
// waiter resumes on its own goroutine rather than reentrantly inside
// Release. Releasing a unit that is not a member fails.
func (p *Pool) Release(u *Unit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if _, ok := p.members[u]; !ok {
		return fmt.Errorf("unit %s: %w", u.ID(), ErrNotMember)
	}

	// Skip entries abandoned by callers whose context expired.
	for p.pending.Length() > 0 {
		d := p.pending.Remove().(*async.Deferred[*Unit])
		if d.Resolve(u) {
			return nil
		}
	}

	p.idle = append(p.idle, u)
	return nil
}

// With acquires a unit, runs fn with it, and releases the unit on every
// exit path, including a panicking fn. Failures are wrapped in a
// PhaseError naming the failing phase; a task failure and a release
// failure are both reported when they coincide.
func (p *Pool) With(ctx context.Context, fn func(u *Unit) error) error {
	u, err := p.Acquire(ctx)
	if err != nil {
		return &PhaseError{Phase: "acquire", Err: err}
	}

	taskErr := runGuarded(fn, u)
	relErr := p.Release(u)

	var errs []error
	if taskErr != nil {
		errs = append(errs, &PhaseError{Phase: "task", Err: taskErr})
	}
	if relErr != nil {
		errs = append(errs, &PhaseError{Phase: "release", Err: relErr})
	}
	return errors.Join(errs...)
}

// runGuarded invokes fn, converting a panic into an error so With can
// still release the unit and report the failure.
func runGuarded(fn func(u *Unit) error, u *Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during task: %v", r)
		}
	}()
	return fn(u)
}

// Close terminates every unit, rejects every still-pending acquisition
// with ErrPoolClosed, and empties the internal collections. Closing an
// already-closed pool is a no-op.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.cancel()

	for p.pending.Length() > 0 {
		d := p.pending.Remove().(*async.Deferred[*Unit])
		d.Reject(ErrPoolClosed)
	}
	p.members = make(map[*Unit]struct{})
	p.idle = nil
	p.logger.Info("pool closed")
}

// evict permanently removes a faulted unit from the membership set and
// the idle list. The unit is never handed to Acquire callers again; a
// request it was serving is left unresolved from the pool's perspective.
func (p *Pool) evict(u *Unit, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.members[u]; !ok {
		return
	}
	delete(p.members, u)
	for i, idle := range p.idle {
		if idle == u {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	p.logger.Warn("unit evicted after fault",
		"unit_id", u.ID(), "error", err, "live", len(p.members))
}
