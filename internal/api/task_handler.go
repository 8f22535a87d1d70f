package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/orogen/orogen/internal/api/shared"
	"github.com/orogen/orogen/internal/exec"
)

// SubmitTaskRequest represents the request body for running a task.
type SubmitTaskRequest struct {
	Type    string          `json:"type"    validate:"required,contains=/"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// TaskResponse represents the terminal result of a task run.
type TaskResponse struct {
	Result     any     `json:"result"`
	DurationMS float64 `json:"duration_ms"`
}

// TaskHandler handles task-submission HTTP requests against the pool.
type TaskHandler struct {
	pool   *exec.Pool
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(pool *exec.Pool, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		pool:   pool,
		logger: logger.With("component", "task_handler"),
	}
}

// SubmitTask handles POST /api/tasks requests: it runs the task on a
// pooled execution unit and responds with the terminal result or error.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	var result exec.Result
	err := h.pool.With(r.Context(), func(u *exec.Unit) error {
		target := u.Submit(exec.Request{Type: req.Type, Payload: req.Payload})
		res, err := target.Wait(r.Context())
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		h.respondRunError(w, r, req.Type, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{
		Result:     result.Value,
		DurationMS: float64(result.Elapsed) / float64(time.Millisecond),
	})
}

// respondRunError maps pool and protocol failures onto HTTP statuses.
func (h *TaskHandler) respondRunError(w http.ResponseWriter, r *http.Request, taskType string, err error) {
	h.logger.Error("task run failed", "task_type", taskType, "error", err)

	var taskErr *exec.TaskError
	switch {
	case errors.Is(err, exec.ErrBacklogFull):
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Pool backlog is full, try again later")
	case errors.Is(err, exec.ErrPoolClosed), errors.Is(err, exec.ErrNoUnits):
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Pool is unavailable")
	case errors.As(err, &taskErr):
		shared.RespondWithError(w, r, http.StatusUnprocessableEntity, taskErr.Message)
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		shared.RespondWithError(w, r, http.StatusRequestTimeout, "Request cancelled while waiting for the task")
	default:
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Task execution failed")
	}
}

// PoolStats handles GET /api/pool requests with a pool occupancy snapshot.
func (h *TaskHandler) PoolStats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.pool.Stats())
}
