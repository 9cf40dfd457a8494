package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/flowrunner/taskrunner/internal/engine"
	"github.com/flowrunner/taskrunner/internal/platform/response"
	"github.com/flowrunner/taskrunner/internal/platform/validation"
	"github.com/flowrunner/taskrunner/pkg/middleware"
)

type submitRequest struct {
	TaskType   string                 `json:"task_type"`
	Parameters map[string]interface{} `json:"parameters"`
	Priority   *int                   `json:"priority,omitempty"`
}

type submitResponse struct {
	TaskID string            `json:"task_id"`
	Status engine.TaskStatus `json:"status"`
}

// handleSubmit implements POST /api/v1/tasks.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrHTTP.WithDetails("body", "malformed JSON"), requestID)
		return
	}

	v := validation.New()
	v.Required(req.TaskType, "task_type")

	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
		v.Range(priority, 0, 10, "priority")
	}

	if v.HasErrors() {
		err := *response.ErrValidation
		err.Details = v.Details()
		response.Error(w, &err, requestID)
		return
	}

	normalized, fieldErrors, known := s.definitions.Validate(req.TaskType, req.Parameters)
	if !known {
		response.Error(w, response.ErrValidation.WithDetails("task_type", "unknown task type: "+req.TaskType), requestID)
		return
	}
	if len(fieldErrors) > 0 {
		err := *response.ErrValidation
		err.Details = make(map[string]string, len(fieldErrors))
		for i, msg := range fieldErrors {
			err.Details["error_"+strconv.Itoa(i+1)] = msg
		}
		response.Error(w, &err, requestID)
		return
	}

	info, submitErr := s.manager.Submit(req.TaskType, normalized, priority)
	if submitErr != nil {
		if errors.Is(submitErr, engine.ErrQueueFull) {
			response.Error(w, response.ErrQueueFull, requestID)
			return
		}
		response.Error(w, response.ErrInternal, requestID)
		return
	}

	response.Accepted(w, submitResponse{TaskID: info.TaskID, Status: info.Status})
}

// handleGet implements GET /api/v1/tasks/{task_id}, with optional
// wait=true&timeout=N long-polling against the record's change
// notifier.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	taskID := mux.Vars(r)["task_id"]

	rec, ok := s.manager.Get(taskID)
	if !ok {
		response.Error(w, response.ErrNotFound, requestID)
		return
	}

	wait, timeout := waitParams(r)
	if wait {
		select {
		case <-rec.Wait():
		case <-r.Context().Done():
		case <-afterTimeout(timeout):
		}
	}

	response.OK(w, rec.Snapshot())
}

// handleList implements GET /api/v1/tasks, streaming application/jsonl
// with one TaskInfo per line.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	q := r.URL.Query()

	v := validation.New()

	limit := 10
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(w, response.ErrValidation.WithDetails("limit", "must be an integer"), requestID)
			return
		}
		v.Range(parsed, 1, 1000, "limit")
		limit = parsed
	}

	var statusFilter *engine.TaskStatus
	if raw := q.Get("status"); raw != "" {
		v.OneOf(raw, []string{
			string(engine.StatusQueued), string(engine.StatusProcessing),
			string(engine.StatusCompleted), string(engine.StatusFailed), string(engine.StatusCancelled),
		}, "status")
		st := engine.TaskStatus(raw)
		statusFilter = &st
	}

	if v.HasErrors() {
		err := *response.ErrValidation
		err.Details = v.Details()
		response.Error(w, &err, requestID)
		return
	}

	tasks := s.manager.List(statusFilter, limit)

	w.Header().Set("Content-Type", "application/jsonl")
	w.WriteHeader(http.StatusOK)
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	enc := json.NewEncoder(bw)
	for _, t := range tasks {
		_ = enc.Encode(t)
	}
}

// handleCancel implements DELETE /api/v1/tasks/{task_id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	taskID := mux.Vars(r)["task_id"]

	info, err := s.manager.Cancel(taskID)
	if err != nil {
		if errors.Is(err, engine.ErrTaskNotFound) {
			response.Error(w, response.ErrNotFound, requestID)
			return
		}
		var notCancellable *engine.NotCancellableError
		if errors.As(err, &notCancellable) {
			response.Error(w, response.ErrNotFound.WithDetails("status", string(notCancellable.Status)), requestID)
			return
		}
		response.Error(w, response.ErrInternal, requestID)
		return
	}

	if info.Status == engine.StatusProcessing {
		rec, ok := s.manager.Get(taskID)
		if ok {
			wait, timeout := waitParams(r)
			if wait {
				select {
				case <-rec.Wait():
				case <-r.Context().Done():
				case <-afterTimeout(timeout):
				}
			}
			info = rec.Snapshot()
		}
		if !info.Status.Terminal() {
			response.JSON(w, http.StatusAccepted, info)
			return
		}
	}

	response.OK(w, info)
}
