package exec

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orogen/orogen/internal/task"
)

func testFactory(registry *task.Registry) UnitFactory {
	return func(index int) (*Unit, error) {
		return NewUnit(registry, testLogger()), nil
	}
}

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()

	p, err := NewPool(context.Background(), testFactory(task.NewRegistry()), size, testLogger())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNewPool_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		_, err := NewPool(context.Background(), testFactory(task.NewRegistry()), size, testLogger())
		assert.ErrorIs(t, err, ErrInvalidSize, "size %d", size)
	}
}

func TestNewPool_FactoryFailure(t *testing.T) {
	spawnErr := errors.New("no more workers")
	factory := func(index int) (*Unit, error) {
		if index == 2 {
			return nil, spawnErr
		}
		return NewUnit(task.NewRegistry(), testLogger()), nil
	}

	_, err := NewPool(context.Background(), factory, 4, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, spawnErr)
}

func TestPool_AcquireAllThenBlock(t *testing.T) {
	const size = 3
	p := newTestPool(t, size)

	// N concurrent acquires all resolve without blocking.
	units := make([]*Unit, 0, size)
	for i := 0; i < size; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		u, err := p.Acquire(ctx)
		cancel()
		require.NoError(t, err)
		units = append(units, u)
	}

	// The (N+1)-th blocks until a release.
	acquired := make(chan *Unit, 1)
	go func() {
		u, err := p.Acquire(context.Background())
		if err == nil {
			acquired <- u
		}
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire should block while every unit is held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Release(units[0]))

	select {
	case u := <-acquired:
		assert.Same(t, units[0], u)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for blocked Acquire to resolve")
	}
}

func TestPool_MaxPendingZero(t *testing.T) {
	p := newTestPool(t, 1)
	require.NoError(t, p.SetMaxPending(0))

	u, err := p.Acquire(context.Background())
	require.NoError(t, err)

	// Fully busy pool with no backlog room: immediate capacity error.
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrBacklogFull)

	require.NoError(t, p.Release(u))
}

func TestPool_SetMaxPending_RejectsNegative(t *testing.T) {
	p := newTestPool(t, 1)
	assert.ErrorIs(t, p.SetMaxPending(-1), ErrNegativePending)
	assert.NoError(t, p.SetMaxPending(5))
	assert.Equal(t, 5, p.MaxPending())
}

func TestPool_ReleaseFulfillsOldestWaiter(t *testing.T) {
	p := newTestPool(t, 1)

	u, err := p.Acquire(context.Background())
	require.NoError(t, err)

	// Queue three waiters in a known order.
	const waiters = 3
	results := make(chan int, waiters)
	ready := make(chan struct{})
	for i := 0; i < waiters; i++ {
		i := i
		go func() {
			if i == 0 {
				close(ready)
			} else {
				<-ready
				// Keep FIFO order deterministic: each waiter queues
				// strictly after the previous one.
				time.Sleep(time.Duration(i) * 30 * time.Millisecond)
			}
			got, err := p.Acquire(context.Background())
			if err != nil {
				return
			}
			results <- i
			_ = p.Release(got)
		}()
	}

	// Let every waiter enqueue before the first release.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, p.Release(u))

	var order []int
	for i := 0; i < waiters; i++ {
		select {
		case n := <-results:
			order = append(order, n)
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for waiter %d", i)
		}
	}
	assert.Equal(t, []int{0, 1, 2}, order, "pending queue must be FIFO")
}

func TestPool_ReleaseNonMember(t *testing.T) {
	p := newTestPool(t, 1)

	stranger := NewUnit(task.NewRegistry(), testLogger())
	assert.ErrorIs(t, p.Release(stranger), ErrNotMember)
}

func TestPool_AbandonedAcquireLeavesNoPhantom(t *testing.T) {
	p := newTestPool(t, 1)

	u, err := p.Acquire(context.Background())
	require.NoError(t, err)

	// A waiter gives up before a unit becomes available.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The released unit must not be lost to the abandoned entry.
	require.NoError(t, p.Release(u))

	got, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, u, got)
	require.NoError(t, p.Release(got))
}

func TestPool_With_ReleasesOnSuccess(t *testing.T) {
	p := newTestPool(t, 2)

	err := p.With(context.Background(), func(u *Unit) error {
		assert.NotNil(t, u)
		return nil
	})
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 2, stats.Idle, "unit must be back on the idle list")
}

func TestPool_With_ReleasesOnTaskError(t *testing.T) {
	p := newTestPool(t, 1)

	taskErr := errors.New("bad math")
	err := p.With(context.Background(), func(u *Unit) error {
		return taskErr
	})

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, "task", phase.Phase)
	assert.ErrorIs(t, err, taskErr)

	assert.Equal(t, 1, p.Stats().Idle)
}

func TestPool_With_ReleasesOnPanic(t *testing.T) {
	p := newTestPool(t, 1)

	err := p.With(context.Background(), func(u *Unit) error {
		panic("midway")
	})

	var phase *PhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, "task", phase.Phase)
	assert.Contains(t, err.Error(), "midway")

	assert.Equal(t, 1, p.Stats().Idle)
}

func TestPool_With_AcquirePhaseError(t *testing.T) {
	p := newTestPool(t, 1)
	require.NoError(t, p.SetMaxPending(0))

	u, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer func() { _ = p.Release(u) }()

	withErr := p.With(context.Background(), func(u *Unit) error { return nil })
	var phase *PhaseError
	require.ErrorAs(t, withErr, &phase)
	assert.Equal(t, "acquire", phase.Phase)
	assert.ErrorIs(t, withErr, ErrBacklogFull)
}

func TestPool_FaultedIdleUnitNeverReturned(t *testing.T) {
	p := newTestPool(t, 2)

	u, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(u))

	u.Fail(errors.New("worker crashed"))

	assert.Equal(t, 1, p.Live())
	assert.Equal(t, 2, p.Size(), "Size counts units ever created")

	// Both remaining acquisitions must avoid the evicted unit.
	for i := 0; i < 4; i++ {
		got, err := p.Acquire(context.Background())
		require.NoError(t, err)
		assert.NotSame(t, u, got)
		require.NoError(t, p.Release(got))
	}
}

func TestPool_AllUnitsFaulted(t *testing.T) {
	p := newTestPool(t, 1)

	u, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(u))
	u.Fail(errors.New("gone"))

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoUnits)
}

func TestPool_Close(t *testing.T) {
	p := newTestPool(t, 1)

	u, err := p.Acquire(context.Background())
	require.NoError(t, err)

	// A pending waiter is rejected with the pool-closed failure.
	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		waiterErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	p.Close()

	select {
	case err := <-waiterErr:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for pending acquire rejection")
	}

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.ErrorIs(t, p.Release(u), ErrPoolClosed)

	// Idempotent.
	p.Close()
	p.Close()
}

func TestPool_EndToEndTaskExecution(t *testing.T) {
	registry := task.NewRegistry()
	registry.Register("math", "square", func(ctx *task.Context) (any, error) {
		var payload struct {
			N float64 `json:"n"`
		}
		if err := ctx.DecodeInput(&payload); err != nil {
			return nil, err
		}
		return payload.N * payload.N, nil
	})

	p, err := NewPool(context.Background(), testFactory(registry), 2, testLogger())
	require.NoError(t, err)
	defer p.Close()

	err = p.With(context.Background(), func(u *Unit) error {
		target := u.Submit(Request{
			Type:    "math/square",
			Payload: []byte(`{"n":6}`),
		})
		res, err := target.Wait(context.Background())
		if err != nil {
			return err
		}
		assert.Equal(t, 36.0, res.Value)
		return nil
	})
	require.NoError(t, err)
}

func TestPool_ConcurrentWithCalls(t *testing.T) {
	registry := task.NewRegistry()
	registry.Register("math", "double", func(ctx *task.Context) (any, error) {
		var payload struct {
			N float64 `json:"n"`
		}
		if err := ctx.DecodeInput(&payload); err != nil {
			return nil, err
		}
		return payload.N * 2, nil
	})

	p, err := NewPool(context.Background(), testFactory(registry), 3, testLogger())
	require.NoError(t, err)
	defer p.Close()

	const callers = 12
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		i := i
		go func() {
			errs <- p.With(context.Background(), func(u *Unit) error {
				target := u.Submit(Request{
					Type:    "math/double",
					Payload: []byte(fmt.Sprintf(`{"n":%d}`, i)),
				})
				res, err := target.Wait(context.Background())
				if err != nil {
					return err
				}
				if res.Value != float64(2*i) {
					return fmt.Errorf("got %v, want %v", res.Value, float64(2*i))
				}
				return nil
			})
		}()
	}

	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for concurrent With calls")
		}
	}

	assert.Equal(t, 3, p.Stats().Idle)
}
