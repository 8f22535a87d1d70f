package exec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/orogen/orogen/internal/grid"
)

// Kind discriminates the messages a unit sends to its controller.
type Kind string

// Message kinds, in the order they may appear for one request. A unit
// sends "ready" once at startup, unsolicited; per request it sends zero
// or one "start", zero or more "progress", then exactly one of "result"
// or "error".
const (
	KindReady    Kind = "ready"
	KindStart    Kind = "start"
	KindProgress Kind = "progress"
	KindResult   Kind = "result"
	KindError    Kind = "error"
)

// Request is the controller-to-unit message. Type addresses a registered
// task ("category/subtype"); Payload carries the task configuration,
// including the mandatory size field.
type Request struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is the unit-to-controller message. Only the fields relevant to
// the Kind are populated. Buffers travel by reference: ownership moves to
// the receiver and the sending side must not touch them again.
type Message struct {
	Kind     Kind           `json:"type"`
	Progress any            `json:"progress,omitempty"`
	Result   any            `json:"result,omitempty"`
	Error    string         `json:"message,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
	Buffers  []*grid.Buffer `json:"-"`
}

// TaskError is the terminal failure of one request, carrying the
// human-readable message from the unit and the elapsed duration when one
// was available.
type TaskError struct {
	Message  string
	Duration time.Duration
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task failed: %s", e.Message)
}
