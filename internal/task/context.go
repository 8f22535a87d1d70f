package task

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/orogen/orogen/internal/grid"
)

// ErrInactiveTask is returned by Progress when the emitting context is no
// longer the one its unit is currently serving, guarding against a stale
// context outliving its request.
var ErrInactiveTask = errors.New("task is no longer active")

// ProgressSink receives progress emissions from a running task body. The
// execution unit implements it and rejects emissions whose id does not
// match the unit's current busy id.
type ProgressSink interface {
	EmitProgress(id int64, detail any, elapsed time.Duration) error
}

// Context is the per-invocation handle passed to a task body. It exposes
// the request's input payload, elapsed time since the request started, a
// progress-emission channel, and the set of buffers marked for zero-copy
// hand-off back to the caller.
//
// A Context is owned exclusively by its unit for the duration of one
// request and is discarded after the terminal message.
type Context struct {
	id     int64
	input  json.RawMessage
	start  time.Time
	sink   ProgressSink
	marked map[*grid.Buffer]struct{}
}

// NewContext builds a context bound to a request id. The start time is
// captured at construction.
func NewContext(id int64, input json.RawMessage, sink ProgressSink) *Context {
	return &Context{
		id:     id,
		input:  input,
		start:  time.Now(),
		sink:   sink,
		marked: make(map[*grid.Buffer]struct{}),
	}
}

// ID returns the request id this context is bound to.
func (c *Context) ID() int64 { return c.id }

// Input returns the raw request payload.
func (c *Context) Input() json.RawMessage { return c.input }

// DecodeInput unmarshals the request payload into v.
func (c *Context) DecodeInput(v any) error {
	return json.Unmarshal(c.input, v)
}

// Elapsed returns the wall-clock duration since context creation, read at
// call time.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.start)
}

// Progress emits a progress message toward the caller. Fails with
// ErrInactiveTask when the unit has moved on from this context's request.
func (c *Context) Progress(detail any) error {
	return c.sink.EmitProgress(c.id, detail, c.Elapsed())
}

// MarkForTransfer adds buffers to the marked set. The operation is
// idempotent and order-independent; marking a buffer twice has no effect.
// Marked buffers are handed off by ownership transfer with the terminal
// result, after which the task must not touch them again.
func (c *Context) MarkForTransfer(buffers ...*grid.Buffer) {
	for _, b := range buffers {
		if b != nil {
			c.marked[b] = struct{}{}
		}
	}
}

// MarkedBuffers returns a snapshot of the marked set.
func (c *Context) MarkedBuffers() []*grid.Buffer {
	out := make([]*grid.Buffer, 0, len(c.marked))
	for b := range c.marked {
		out = append(out, b)
	}
	return out
}
