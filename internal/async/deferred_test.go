package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferred_ResolveOnce(t *testing.T) {
	d := NewDeferred[int]()
	assert.False(t, d.Settled())

	assert.True(t, d.Resolve(42))
	assert.True(t, d.Settled())

	// Later settlement attempts are ignored, not raised.
	assert.False(t, d.Resolve(99))
	assert.False(t, d.Reject(errors.New("too late")))

	v, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDeferred_RejectOnce(t *testing.T) {
	d := NewDeferred[string]()
	expected := errors.New("boom")

	assert.True(t, d.Reject(expected))
	assert.False(t, d.Resolve("ignored"))

	_, err := d.Await(context.Background())
	assert.ErrorIs(t, err, expected)
}

func TestDeferred_AwaitBlocksUntilResolved(t *testing.T) {
	d := NewDeferred[int]()

	got := make(chan int, 1)
	go func() {
		v, err := d.Await(context.Background())
		if err == nil {
			got <- v
		}
	}()

	// Give the awaiting goroutine a moment to block.
	time.Sleep(20 * time.Millisecond)
	d.Resolve(7)

	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for Await to observe resolution")
	}
}

func TestDeferred_AwaitContextCancellation(t *testing.T) {
	d := NewDeferred[int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// A cancelled wait does not settle the future.
	assert.False(t, d.Settled())
	assert.True(t, d.Resolve(1))
}

func TestDeferred_ConcurrentSettlement(t *testing.T) {
	d := NewDeferred[int]()

	var wg sync.WaitGroup
	settled := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if d.Resolve(v) {
				settled <- v
			}
		}(i)
	}
	wg.Wait()
	close(settled)

	var winners []int
	for v := range settled {
		winners = append(winners, v)
	}
	require.Len(t, winners, 1)

	v, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, winners[0], v)
}
