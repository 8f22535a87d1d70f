package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orogen/orogen/internal/grid"
)

// mockSink records progress emissions and can simulate a unit that has
// moved on to a different request.
type mockSink struct {
	activeID int64
	details  []any
}

func (m *mockSink) EmitProgress(id int64, detail any, elapsed time.Duration) error {
	if id != m.activeID {
		return ErrInactiveTask
	}
	m.details = append(m.details, detail)
	return nil
}

func TestContext_DecodeInput(t *testing.T) {
	input := json.RawMessage(`{"size":[4,3],"seed":7}`)
	ctx := NewContext(1, input, &mockSink{activeID: 1})

	var payload struct {
		Size [2]int `json:"size"`
		Seed int64  `json:"seed"`
	}
	require.NoError(t, ctx.DecodeInput(&payload))
	assert.Equal(t, [2]int{4, 3}, payload.Size)
	assert.Equal(t, int64(7), payload.Seed)
}

func TestContext_Progress(t *testing.T) {
	sink := &mockSink{activeID: 5}
	ctx := NewContext(5, nil, sink)

	require.NoError(t, ctx.Progress(0.25))
	require.NoError(t, ctx.Progress(0.5))
	assert.Equal(t, []any{0.25, 0.5}, sink.details)
}

func TestContext_Progress_InactiveTask(t *testing.T) {
	// The sink's active id has moved past this context's request.
	sink := &mockSink{activeID: 6}
	stale := NewContext(5, nil, sink)

	assert.ErrorIs(t, stale.Progress(0.9), ErrInactiveTask)
	assert.Empty(t, sink.details)
}

func TestContext_MarkForTransfer_Idempotent(t *testing.T) {
	ctx := NewContext(1, nil, &mockSink{activeID: 1})

	a, err := grid.New(2, 2)
	require.NoError(t, err)
	b, err := grid.New(3, 3)
	require.NoError(t, err)

	ctx.MarkForTransfer(a)
	ctx.MarkForTransfer(b, a)
	ctx.MarkForTransfer(a, nil)

	assert.ElementsMatch(t, []*grid.Buffer{a, b}, ctx.MarkedBuffers())
}

func TestContext_Elapsed(t *testing.T) {
	ctx := NewContext(1, nil, &mockSink{activeID: 1})

	time.Sleep(10 * time.Millisecond)
	first := ctx.Elapsed()
	assert.GreaterOrEqual(t, first, 10*time.Millisecond)

	// Elapsed is read at call time, not captured once.
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, ctx.Elapsed(), first)
}
