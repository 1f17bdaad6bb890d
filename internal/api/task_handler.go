package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lightlogic3/popflow/internal/api/shared"
	"github.com/lightlogic3/popflow/internal/task"
)

// TaskHandler handles task runtime API requests.
type TaskHandler struct {
	manager       *task.Manager
	defaultMaxAge time.Duration
	validator     *validator.Validate
}

// NewTaskHandler creates a TaskHandler over the task manager.
// defaultMaxAge is the retention window used when a cleanup request does
// not specify one.
func NewTaskHandler(manager *task.Manager, defaultMaxAge time.Duration) *TaskHandler {
	return &TaskHandler{
		manager:       manager,
		defaultMaxAge: defaultMaxAge,
		validator:     validator.New(),
	}
}

// List handles GET /api/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks := h.manager.All()
	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, NewTaskResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task information unavailable")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(t))
}

// Cancel handles POST /api/tasks/{id}/cancel. Cancellation is
// best-effort: a task already running on a worker keeps running detached.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	err := h.manager.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task information unavailable")
			return
		}
		shared.RespondWithError(w, r, http.StatusConflict, err.Error())
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Cleanup handles POST /api/tasks/cleanup.
func (h *TaskHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	maxAge := h.defaultMaxAge

	var req TaskCleanupRequest
	if err := shared.DecodeJSON(r, &req); err == nil && req.MaxAgeMinutes > 0 {
		maxAge = time.Duration(req.MaxAgeMinutes) * time.Minute
	}

	removed := h.manager.CleanupCompleted(maxAge)
	shared.RespondWithJSON(w, r, http.StatusOK, TaskCleanupResponse{Removed: removed})
}
