package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/api/shared"
	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/scheduler"
	"github.com/lightlogic3/popflow/internal/store"
)

// JobHandler handles scheduler admin API requests.
type JobHandler struct {
	scheduler *scheduler.Scheduler
	validator *validator.Validate
}

// NewJobHandler creates a JobHandler over the scheduler.
func NewJobHandler(sched *scheduler.Scheduler) *JobHandler {
	return &JobHandler{
		scheduler: sched,
		validator: validator.New(),
	}
}

// Create handles POST /api/jobs.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req JobCreateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	job, err := domain.NewJob(req.Name, domain.TriggerType(req.TriggerType), req.TriggerArgs, req.FuncName, req.FuncArgs)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job definition: "+err.Error())
		return
	}
	if req.MaxInstances > 0 {
		job.MaxInstances = req.MaxInstances
	}

	if err := h.scheduler.AddJob(r.Context(), job); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrUnknownJobFunc):
			shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown job function")
		case errors.Is(err, domain.ErrInvalidTriggerArgs), errors.Is(err, domain.ErrInvalidTriggerType):
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid trigger: "+err.Error())
		default:
			slog.Error("failed to add job", "error", err, "name", req.Name)
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to add job")
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, job)
}

// List handles GET /api/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.scheduler.ListJobs(r.Context())
	if err != nil {
		slog.Error("failed to list jobs", "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobs)
}

// Get handles GET /api/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.scheduler.GetJob(r.Context(), id)
	if err != nil {
		h.respondJobError(w, r, err, "Failed to load job")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, job)
}

// Runs handles GET /api/jobs/{id}/runs.
func (h *JobHandler) Runs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := h.scheduler.ListRuns(r.Context(), id, limit)
	if err != nil {
		h.respondJobError(w, r, err, "Failed to list job runs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, runs)
}

// Remove handles DELETE /api/jobs/{id}.
func (h *JobHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.adminOp(w, r, h.scheduler.RemoveJob, "removed")
}

// Pause handles POST /api/jobs/{id}/pause.
func (h *JobHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.adminOp(w, r, h.scheduler.PauseJob, "paused")
}

// Resume handles POST /api/jobs/{id}/resume.
func (h *JobHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.adminOp(w, r, h.scheduler.ResumeJob, "resumed")
}

// Trigger handles POST /api/jobs/{id}/trigger.
func (h *JobHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.adminOp(w, r, h.scheduler.TriggerJob, "triggered")
}

type jobOp func(ctx context.Context, id uuid.UUID) error

func (h *JobHandler) adminOp(w http.ResponseWriter, r *http.Request, op jobOp, verb string) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if err := op(r.Context(), id); err != nil {
		h.respondJobError(w, r, err, "Failed to "+verb+" job")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": verb})
}

func (h *JobHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *JobHandler) respondJobError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case store.IsNotFoundError(err):
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
	case errors.Is(err, scheduler.ErrJobNotSchedulable):
		shared.RespondWithError(w, r, http.StatusConflict, err.Error())
	default:
		slog.Error("job operation failed", "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, fallback)
	}
}
